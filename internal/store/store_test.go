package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gravwell/x32mgr/internal/correlator"
	"github.com/gravwell/x32mgr/internal/eventbus"
	"github.com/gravwell/x32mgr/internal/manifest"
	"github.com/gravwell/x32mgr/internal/osc"
	"github.com/gravwell/x32mgr/internal/transport/mock"
	"github.com/gravwell/x32mgr/internal/xlog"
)

func newTestStore(t *testing.T) (*Store, *mock.Transport) {
	t.Helper()
	dir := t.TempDir()
	bus := eventbus.New()
	tr := mock.New(bus)
	c := correlator.New(xlog.NewDiscard(), bus, tr)
	tr.SetReply("/xinfo", mock.Reply{Args: []osc.Arg{
		osc.String("10.0.0.2"), osc.String("FOH"), osc.String("X32"), osc.String("4.08"),
	}})
	s, err := New(xlog.NewDiscard(), bus, c, tr, dir)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, tr
}

func TestSandboxRejectsEscapingNames(t *testing.T) {
	cases := []string{"../etc/passwd", "/etc/passwd", "a/../../b", "a/b", "a\\b"}
	dir := t.TempDir()
	for _, c := range cases {
		_, err := sanitizeFilename(dir, c)
		require.Error(t, err, "expected rejection for %q", c)
	}
}

func TestSandboxAcceptsPlainNames(t *testing.T) {
	dir := t.TempDir()
	p, err := sanitizeFilename(dir, "foh.scn")
	require.NoError(t, err)
	require.True(t, filepath.IsAbs(p))
}

func TestListMergesDeviceAndDiskByName(t *testing.T) {
	s, tr := newTestStore(t)
	tr.SetSlot(0, "FOH", "opener notes")

	require.NoError(t, os.WriteFile(filepath.Join(s.dir, "foh.scn"), []byte("#4.08# \"FOH\" \"\" 0 0\n"), 0o644))

	records, err := s.List(context.Background(), KindScene)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, Both, records[0].Origin)
	require.Equal(t, "device-0", records[0].ID)
	require.True(t, records[0].HasLocalBackup)
}

func TestListSkipsEmptyNamedSlots(t *testing.T) {
	s, tr := newTestStore(t)
	tr.SetSlot(0, "Opener", "")
	tr.SetSlot(2, "Encore", "")
	// slot 1 left unset -> empty name -> absent

	records, err := s.List(context.Background(), KindScene)
	require.NoError(t, err)
	require.Len(t, records, 2)
	names := []string{records[0].Name, records[1].Name}
	require.ElementsMatch(t, []string{"Opener", "Encore"}, names)
}

func TestSaveThenDeleteLocalRecord(t *testing.T) {
	s, _ := newTestStore(t)
	rec, err := s.Save(KindScene, "my-scene", "notes here")
	require.NoError(t, err)
	require.Equal(t, "local-my-scene", rec.ID)

	_, err = os.Stat(filepath.Join(s.dir, "my-scene.scn"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(context.Background(), KindScene, rec.ID))
	_, err = os.Stat(filepath.Join(s.dir, "my-scene.scn"))
	require.True(t, os.IsNotExist(err))
}

func TestDeleteOnDeviceRecordIsUnsupported(t *testing.T) {
	s, tr := newTestStore(t)
	tr.SetSlot(0, "Opener", "")

	err := s.Delete(context.Background(), KindScene, "device-0")
	require.Error(t, err)
}

func TestGetMissingRecordIsNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Get(context.Background(), KindScene, "local-nonexistent")
	require.Error(t, err)
}

func TestLoadDeviceSlotSendsRecallCommand(t *testing.T) {
	s, tr := newTestStore(t)
	tr.SetSlot(5, "FOH", "")

	require.NoError(t, s.Load(context.Background(), KindScene, "device-5"))
	sent := tr.Sent()
	require.NotEmpty(t, sent)
	last := sent[len(sent)-1]
	require.Equal(t, recallAddress, last.Address)
	require.Equal(t, int32(5), last.Args[0].I)
}

func TestBackupWritesLocalFile(t *testing.T) {
	s, tr := newTestStore(t)
	tr.SetSlot(3, "Encore", "")
	addrs, _ := manifest.Flatten(manifest.SceneManifest())
	for _, a := range addrs {
		tr.SetReply(a, mock.Reply{Args: []osc.Arg{osc.Int(1)}})
	}

	rec, err := s.Backup(context.Background(), KindScene, "device-3")
	require.NoError(t, err)
	require.True(t, rec.HasLocalBackup)

	_, err = os.Stat(filepath.Join(s.dir, "Encore.scn"))
	require.NoError(t, err)
}
