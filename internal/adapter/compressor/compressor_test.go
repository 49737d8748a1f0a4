package compressor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/semmidev/snapkeep/internal/domain"
	. "github.com/smartystreets/goconvey/convey"
)

func writeArchive(c domain.Compressor, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w, err := c.NewWriter(file)
	if err != nil {
		return err
	}
	if err := w.WriteEntry("users", []domain.Document{{"name": "ada"}, {"name": "grace"}}); err != nil {
		return err
	}
	if err := w.WriteEntry("orders", []domain.Document{{"total": 42.5}}); err != nil {
		return err
	}
	return w.Close()
}

func TestCompressors(t *testing.T) {
	Convey("Given the archive compressors", t, func() {
		tempDir, err := os.MkdirTemp("", "compressor_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(tempDir)

		Convey("New function", func() {
			Convey("It should resolve every supported name", func() {
				for _, name := range []domain.Compression{
					domain.CompressionNone, domain.CompressionGzip, domain.CompressionZip, domain.CompressionZstd,
				} {
					c, err := New(name)
					So(err, ShouldBeNil)
					So(c.Name(), ShouldEqual, name)
				}
			})

			Convey("It should default to gzip", func() {
				c, err := New("")
				So(err, ShouldBeNil)
				So(c.Name(), ShouldEqual, domain.CompressionGzip)
			})

			Convey("Detect should infer the compression from the extension", func() {
				for path, want := range map[string]domain.Compression{
					"backup_1.ndjson":      domain.CompressionNone,
					"backup_1.ndjson.gz":   domain.CompressionGzip,
					"backup_1.zip":         domain.CompressionZip,
					"/x/backup.ndjson.zst": domain.CompressionZstd,
				} {
					got, err := Detect(path)
					So(err, ShouldBeNil)
					So(got, ShouldEqual, want)
				}

				_, err := Detect("backup.tar")
				So(err, ShouldNotBeNil)
			})

			Convey("It should reject unknown names", func() {
				_, err := New("rar")
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "unsupported compression")
			})
		})

		Convey("When writing and reading back an archive", func() {
			for _, name := range []domain.Compression{
				domain.CompressionNone, domain.CompressionGzip, domain.CompressionZip, domain.CompressionZstd,
			} {
				c, _ := New(name)
				path := filepath.Join(tempDir, "archive"+c.Extension())
				So(writeArchive(c, path), ShouldBeNil)

				entries, err := ReadArchive(path, name)
				So(err, ShouldBeNil)
				So(len(entries["users"]), ShouldEqual, 2)
				So(entries["users"][1]["name"], ShouldEqual, "grace")
				So(len(entries["orders"]), ShouldEqual, 1)
				So(entries["orders"][0]["total"], ShouldEqual, 42.5)
			}
		})

		Convey("When gzip output is compared with the raw stream", func() {
			rawPath := filepath.Join(tempDir, "raw.ndjson")
			gzPath := filepath.Join(tempDir, "raw.ndjson.gz")
			So(writeArchive(NewNone(), rawPath), ShouldBeNil)
			So(writeArchive(NewGzip(), gzPath), ShouldBeNil)

			raw, err := os.ReadFile(rawPath)
			So(err, ShouldBeNil)
			So(string(raw), ShouldContainSubstring, `"collection":"users"`)

			_, err = ReadArchive(rawPath, domain.CompressionGzip)
			Convey("Reading raw bytes as gzip should fail", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "failed to create gzip reader")
			})
		})

		Convey("When the archive does not exist", func() {
			_, err := ReadArchive(filepath.Join(tempDir, "missing.zip"), domain.CompressionZip)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "failed to open archive")
		})
	})
}
