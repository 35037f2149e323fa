package scenefile

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gravwell/x32mgr/internal/osc"
)

func TestRoundTrip(t *testing.T) {
	h := Header{Firmware: "4.08", Name: "FOH Main", Notes: `Tour notes with "quotes" inside`, SafetyMask: 3, HasAliases: 1}
	records := []Record{
		{Address: "/ch/01/mix/fader", Args: []osc.Arg{osc.Float(0.75)}},
		{Address: "/ch/01/config/name", Args: []osc.Arg{osc.String("Kick In")}},
		{Address: "/ch/01/mix/on", Args: []osc.Arg{osc.Int(1)}},
		{Address: "/-show/showfile/scene/000/name", Args: []osc.Arg{osc.String("Opener")}},
	}

	buf, err := Write(h, records, FlatPrecision(6))
	require.NoError(t, err)
	require.True(t, buf[len(buf)-1] == '\n', "file must end with a trailing newline")

	gotHeader, gotRecords, err := Read(buf)
	require.NoError(t, err)
	require.Equal(t, h, gotHeader)
	require.Len(t, gotRecords, len(records))
	for i, r := range records {
		require.Equal(t, r.Address, gotRecords[i].Address)
		require.Len(t, gotRecords[i].Args, len(r.Args))
		for j, a := range r.Args {
			require.True(t, a.Equal(gotRecords[i].Args[j]), "arg %d of record %d mismatched: want %v got %v", j, i, a, gotRecords[i].Args[j])
		}
	}
}

func TestWriteFormatsValuesPerConsolePrinter(t *testing.T) {
	h := Header{Firmware: "4.08", Name: "n", Notes: "", SafetyMask: 0, HasAliases: 0}
	records := []Record{
		{Address: "/ch/01/mix/fader", Args: []osc.Arg{osc.Float(0.5)}},
		{Address: "/ch/01/mix/pan", Args: []osc.Arg{osc.Int(-3)}},
	}
	buf, err := Write(h, records, FlatPrecision(6))
	require.NoError(t, err)
	require.Contains(t, string(buf), "/ch/01/mix/fader 0.500000\n")
	require.Contains(t, string(buf), "/ch/01/mix/pan -3\n")
}

func TestReadToleratesBlankAndCommentLines(t *testing.T) {
	data := []byte("#4.08# \"n\" \"\" 0 0\n\n# a comment\n/ch/01/mix/fader 0.500000\n")
	h, records, err := Read(data)
	require.NoError(t, err)
	require.Equal(t, "4.08", h.Firmware)
	require.Len(t, records, 1)
}

func TestReadMissingTrailingHeaderFieldsDefaultToZero(t *testing.T) {
	data := []byte("#4.08# \"n\" \"notes\"\n/a 1\n")
	h, _, err := Read(data)
	require.NoError(t, err)
	require.Equal(t, 0, h.SafetyMask)
	require.Equal(t, 0, h.HasAliases)
}

func TestQuotedStringDoublingEscape(t *testing.T) {
	rec := Record{Address: "/ch/01/config/name", Args: []osc.Arg{osc.String(`say "hi"`)}}
	buf, err := Write(Header{Firmware: "4.08"}, []Record{rec}, nil)
	require.NoError(t, err)
	require.Contains(t, string(buf), `"say ""hi"""`)

	_, records, err := Read(buf)
	require.NoError(t, err)
	require.Equal(t, `say "hi"`, records[0].Args[0].S)
}

func TestReadRejectsEmptyFile(t *testing.T) {
	_, _, err := Read([]byte(""))
	require.Error(t, err)
}
