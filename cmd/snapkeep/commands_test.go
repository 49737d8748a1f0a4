package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/semmidev/snapkeep/internal/adapter/compressor"
	"github.com/semmidev/snapkeep/internal/domain"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInspectCmd(t *testing.T) {
	Convey("Given an archive on disk", t, func() {
		tempDir, err := os.MkdirTemp("", "inspect_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(tempDir)

		path := filepath.Join(tempDir, "backup_20250317_020000_abcd1234.ndjson.zst")
		file, err := os.Create(path)
		So(err, ShouldBeNil)
		w, err := compressor.NewZstd().NewWriter(file)
		So(err, ShouldBeNil)
		So(w.WriteEntry("users", []domain.Document{{"name": "ada"}, {"name": "grace"}}), ShouldBeNil)
		So(w.WriteEntry("orders", []domain.Document{{"total": 42.5}}), ShouldBeNil)
		So(w.Close(), ShouldBeNil)
		So(file.Close(), ShouldBeNil)

		run := func(args ...string) (string, error) {
			root := newRootCmd()
			var out bytes.Buffer
			root.SetOut(&out)
			root.SetArgs(args)
			err := root.Execute()
			return out.String(), err
		}

		Convey("inspect lists collections and counts", func() {
			out, err := run("inspect", path)
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "COLLECTION")
			So(out, ShouldContainSubstring, "orders")
			So(out, ShouldContainSubstring, "users       2")
		})

		Convey("inspect --dump prints documents as JSON lines", func() {
			out, err := run("inspect", path, "--dump", "users")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, `{"name":"ada"}`)
			So(out, ShouldContainSubstring, `{"name":"grace"}`)
		})

		Convey("inspect rejects an unknown collection", func() {
			_, err := run("inspect", path, "--dump", "ghosts")
			So(err, ShouldNotBeNil)
		})

		Convey("inspect needs a recognizable extension or an explicit compression", func() {
			other := filepath.Join(tempDir, "archive.bin")
			So(os.Rename(path, other), ShouldBeNil)

			_, err := run("inspect", other)
			So(err, ShouldNotBeNil)

			out, err := run("inspect", other, "--compression", "zstd")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "users")
		})
	})
}

func TestPrintBackup(t *testing.T) {
	Convey("printBackup summarizes a run", t, func() {
		var out bytes.Buffer
		printBackup(&out, &domain.BackupMetadata{
			ID:             "b1",
			Status:         domain.StatusPartial,
			Collections:    []string{"users"},
			DocumentCounts: map[string]int64{"users": 2},
			ArchivePath:    "/tmp/b1.ndjson.gz",
			Size:           128,
			RemoteObjects:  map[string]string{"s3": "backups/b1.ndjson.gz", "local": "b1.ndjson.gz"},
			Error:          "collection orders: boom",
		})

		s := out.String()
		So(s, ShouldContainSubstring, "Backup b1: partial")
		So(s, ShouldContainSubstring, "archive: /tmp/b1.ndjson.gz (128 bytes)")
		So(s, ShouldContainSubstring, "error: collection orders: boom")
		So(bytes.Index(out.Bytes(), []byte("local:")), ShouldBeLessThan, bytes.Index(out.Bytes(), []byte("s3:")))
	})
}
