// Package manifest is the frozen parameter address list the export/import
// orchestrators walk (C6/C7). The vendor's exact address list wasn't
// recoverable, so this ships a representative manifest sized to
// exercise every code path C4-C7 need.
package manifest

import "fmt"

// Section groups a contiguous run of addresses under one progress label
// (e.g. "channel strip 12", "bus sends", "snippet headers").
type Section struct {
	Label     string
	Addresses []string
}

// faderPrecisionDigits and otherPrecisionDigits are the two address-class
// precision tiers: faders/gains print with more decimal digits than
// everything else.
const (
	faderPrecisionDigits = 6
	otherPrecisionDigits = 1
)

// faderSuffixes names the leaf parameters that print at the high-precision
// tier; everything else in the manifest uses the low-precision tier.
var faderSuffixes = map[string]bool{
	"/mix/fader": true,
	"/mix/gain":  true,
	"/config/gain": true,
}

// Precision implements scenefile.Precision: fader/gain levels print
// at 6 digits, everything else at 1, matching the console's own printer
// tiers.
type Precision struct{}

func (Precision) FractionDigits(address string) int {
	for suffix := range faderSuffixes {
		if len(address) >= len(suffix) && address[len(address)-len(suffix):] == suffix {
			return faderPrecisionDigits
		}
	}
	return otherPrecisionDigits
}

const (
	numChannels = 32
	numBuses    = 16
	numMatrices = 6
	numDCAs     = 8
	numFXSlots  = 8
	numSlots    = 100 // scene and snippet slots share this range
)

// SceneManifest returns the scene-level address list: input channels, bus
// sends, DCAs, output matrices, effects, routing, and surface state —
// 1125 entries in all.
func SceneManifest() []Section {
	var sections []Section
	sections = append(sections, channelStripSections()...)
	sections = append(sections, busSections()...)
	sections = append(sections, matrixSections()...)
	sections = append(sections, Section{Label: "effects", Addresses: fxAddresses()})
	sections = append(sections, Section{Label: "routing", Addresses: routingAddresses()})
	sections = append(sections, Section{Label: "surface", Addresses: surfaceAddresses()})
	return sections
}

// BackupManifest returns the full-console manifest: everything in
// SceneManifest plus every scene/snippet slot header, library preset
// pointers, and the current-scene pointer: 1529 entries in all, a
// representative subset rather than the console's complete address list.
func BackupManifest() []Section {
	sections := SceneManifest()
	sections = append(sections, sceneHeaderSections()...)
	sections = append(sections, snippetHeaderSections()...)
	sections = append(sections, Section{Label: "library pointers", Addresses: libraryAddresses()})
	sections = append(sections, Section{Label: "current scene", Addresses: []string{"/-show/prepos/current"}})
	return sections
}

// Flatten concatenates every section's addresses into one ordered list,
// alongside a parallel slice of section labels for progress reporting.
func Flatten(sections []Section) (addresses []string, labels []string) {
	for _, s := range sections {
		for _, a := range s.Addresses {
			addresses = append(addresses, a)
			labels = append(labels, s.Label)
		}
	}
	return addresses, labels
}

func channelStripSections() []Section {
	sections := make([]Section, 0, numChannels)
	for ch := 1; ch <= numChannels; ch++ {
		prefix := fmt.Sprintf("/ch/%02d", ch)
		sections = append(sections, Section{
			Label: fmt.Sprintf("channel strip %d", ch),
			Addresses: []string{
				prefix + "/config/name",
				prefix + "/config/icon",
				prefix + "/config/color",
				prefix + "/config/gain",
				prefix + "/preamp/trim",
				prefix + "/preamp/invert",
				prefix + "/gate/on",
				prefix + "/gate/thr",
				prefix + "/dyn/on",
				prefix + "/dyn/thr",
				prefix + "/eq/on",
				prefix + "/mix/on",
				prefix + "/mix/fader",
				prefix + "/mix/pan",
			},
		})
	}
	return sections
}

func busSections() []Section {
	sections := make([]Section, 0, numBuses)
	for b := 1; b <= numBuses; b++ {
		prefix := fmt.Sprintf("/bus/%02d", b)
		sections = append(sections, Section{
			Label: fmt.Sprintf("bus %d", b),
			Addresses: []string{
				prefix + "/config/name",
				prefix + "/mix/on",
				prefix + "/mix/fader",
				prefix + "/mix/pan",
			},
		})
	}
	for ch := 1; ch <= numChannels; ch++ {
		for b := 1; b <= numBuses; b++ {
			sections = append(sections, Section{
				Label:     fmt.Sprintf("channel %d send to bus %d", ch, b),
				Addresses: []string{fmt.Sprintf("/ch/%02d/mix/%02d/level", ch, b)},
			})
		}
	}
	for d := 1; d <= numDCAs; d++ {
		prefix := fmt.Sprintf("/dca/%d", d)
		sections = append(sections, Section{
			Label: fmt.Sprintf("dca %d", d),
			Addresses: []string{
				prefix + "/config/name",
				prefix + "/fader",
				prefix + "/on",
			},
		})
	}
	return sections
}

func matrixSections() []Section {
	sections := make([]Section, 0, numMatrices)
	for m := 1; m <= numMatrices; m++ {
		prefix := fmt.Sprintf("/mtx/%02d", m)
		sections = append(sections, Section{
			Label: fmt.Sprintf("matrix %d", m),
			Addresses: []string{
				prefix + "/config/name",
				prefix + "/mix/on",
				prefix + "/mix/fader",
			},
		})
	}
	return sections
}

func fxAddresses() []string {
	var out []string
	for fx := 1; fx <= numFXSlots; fx++ {
		prefix := fmt.Sprintf("/fx/%d", fx)
		out = append(out, prefix+"/type", prefix+"/par/01", prefix+"/par/02")
	}
	return out
}

func routingAddresses() []string {
	var out []string
	for ch := 1; ch <= numChannels; ch++ {
		out = append(out, fmt.Sprintf("/config/routing/IN/%02d", ch))
	}
	return out
}

func surfaceAddresses() []string {
	return []string{
		"/-stat/screen/screen",
		"/-stat/selidx",
		"/-stat/solosw/selected",
	}
}

func sceneHeaderSections() []Section {
	sections := make([]Section, 0, numSlots)
	for i := 0; i < numSlots; i++ {
		prefix := fmt.Sprintf("/-show/showfile/scene/%03d", i)
		sections = append(sections, Section{
			Label:     fmt.Sprintf("scene header %d", i),
			Addresses: []string{prefix + "/name", prefix + "/notes"},
		})
	}
	return sections
}

func snippetHeaderSections() []Section {
	sections := make([]Section, 0, numSlots)
	for i := 0; i < numSlots; i++ {
		prefix := fmt.Sprintf("/-show/showfile/snippet/%03d", i)
		sections = append(sections, Section{
			Label:     fmt.Sprintf("snippet header %d", i),
			Addresses: []string{prefix + "/name", prefix + "/notes"},
		})
	}
	return sections
}

func libraryAddresses() []string {
	return []string{
		"/-libs/ch/name",
		"/-libs/fx/name",
		"/-libs/chst/name",
	}
}

// SlotNameAddress and SlotNotesAddress build the two per-slot query
// addresses the store (C8) uses for enumeration.
func SlotNameAddress(kind string, idx int) string {
	return fmt.Sprintf("/-show/showfile/%s/%03d/name", kind, idx)
}

func SlotNotesAddress(kind string, idx int) string {
	return fmt.Sprintf("/-show/showfile/%s/%03d/notes", kind, idx)
}

// NumSlots is the count of scene and snippet slots (0..99).
const NumSlots = numSlots
