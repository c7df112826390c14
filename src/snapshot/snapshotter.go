package snapshot

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/concordnetworks/concord/src/crypto"
	"github.com/concordnetworks/concord/src/store"
	"github.com/sirupsen/logrus"
)

// DefaultRetentionLimit is how many archive files are kept on disk.
const DefaultRetentionLimit = 10

// archivePrefix and archiveSuffix frame the archive filenames. The
// timestamp in between is nanosecond-precise so names sort by creation
// order and never collide within a process.
const (
	archivePrefix = "snapshot_"
	archiveSuffix = ".tar.gz"

	timestampLayout = "20060102T150405.000000000Z"
)

// Snapshotter bundles ledger artifacts and enforces retention.
type Snapshotter struct {
	sources        []string
	archiveDir     string
	db             store.Store
	retentionLimit int
	logger         *logrus.Entry
}

// NewSnapshotter instantiates a Snapshotter over the given source artifact
// paths. A retentionLimit of 0 selects the default.
func NewSnapshotter(sources []string, archiveDir string, db store.Store, retentionLimit int, logger *logrus.Entry) *Snapshotter {
	if retentionLimit <= 0 {
		retentionLimit = DefaultRetentionLimit
	}
	return &Snapshotter{
		sources:        sources,
		archiveDir:     archiveDir,
		db:             db,
		retentionLimit: retentionLimit,
		logger:         logger.WithField("prefix", "snapshot"),
	}
}

// Run creates one archive, appends its manifest record, and prunes archives
// beyond the retention limit. Missing source artifacts are skipped with a
// warning; the archive is still produced. Manifest records for pruned
// archives are retained.
func (s *Snapshotter) Run() (*Record, error) {
	now := time.Now().UTC()
	name := archivePrefix + now.Format(timestampLayout) + archiveSuffix

	if err := os.MkdirAll(s.archiveDir, 0700); err != nil {
		return nil, err
	}

	path := filepath.Join(s.archiveDir, name)
	if err := s.writeArchive(path); err != nil {
		return nil, err
	}

	sha, err := crypto.SHA256File(path)
	if err != nil {
		return nil, err
	}

	record := &Record{
		Timestamp: now,
		Archive:   name,
		SHA256:    sha,
	}

	buf, err := record.Marshal()
	if err != nil {
		return nil, err
	}
	if err := s.db.Append(ManifestKey, buf); err != nil {
		return nil, err
	}

	pruned, err := s.prune()
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"archive": name,
		"sha256":  sha,
		"pruned":  pruned,
	}).Info("Snapshot taken")

	return record, nil
}

// ArchiveDir returns the directory holding the archive files.
func (s *Snapshotter) ArchiveDir() string {
	return s.archiveDir
}

// writeArchive streams the source artifacts into a gzipped tarball.
func (s *Snapshotter) writeArchive(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)

	for _, source := range s.sources {
		if err := s.addFile(tw, source); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gw.Close()
}

func (s *Snapshotter) addFile(tw *tar.Writer, source string) error {
	f, err := os.Open(source)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.WithField("source", source).Warn("Source artifact missing, skipped")
			return nil
		}
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(source)

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}

// prune deletes archive files beyond the retention limit, oldest first by
// creation order. It returns how many files were deleted.
func (s *Snapshotter) prune() (int, error) {
	entries, err := os.ReadDir(s.archiveDir)
	if err != nil {
		return 0, err
	}

	archives := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), archivePrefix) && strings.HasSuffix(e.Name(), archiveSuffix) {
			archives = append(archives, e.Name())
		}
	}

	if len(archives) <= s.retentionLimit {
		return 0, nil
	}

	// Timestamped names sort by creation order.
	sort.Strings(archives)

	doomed := archives[:len(archives)-s.retentionLimit]
	for _, name := range doomed {
		if err := os.Remove(filepath.Join(s.archiveDir, name)); err != nil {
			return 0, fmt.Errorf("snapshot: pruning %s: %v", name, err)
		}
		s.logger.WithField("archive", name).Debug("Archive pruned")
	}

	return len(doomed), nil
}
