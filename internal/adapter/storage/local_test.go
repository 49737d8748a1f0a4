package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLocalStorage(t *testing.T) {
	Convey("Given a LocalStorage", t, func() {
		tempDir, err := os.MkdirTemp("", "local_storage_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(tempDir)

		Convey("NewLocal", func() {
			Convey("When creating with valid path", func() {
				storage, err := NewLocal(tempDir)

				Convey("It should create successfully", func() {
					So(err, ShouldBeNil)
					So(storage, ShouldNotBeNil)
					So(storage.basePath, ShouldEqual, tempDir)
				})
			})

			Convey("When creating with non-existent path", func() {
				newPath := filepath.Join(tempDir, "new", "nested", "dir")
				storage, err := NewLocal(newPath)

				Convey("It should create directory and succeed", func() {
					So(err, ShouldBeNil)
					So(storage, ShouldNotBeNil)

					info, err := os.Stat(newPath)
					So(err, ShouldBeNil)
					So(info.IsDir(), ShouldBeTrue)
				})
			})
		})

		Convey("Upload method", func() {
			mirror := filepath.Join(tempDir, "mirror")
			storage, _ := NewLocal(mirror)
			ctx := context.Background()

			Convey("When uploading a valid file", func() {
				sourceFile := filepath.Join(tempDir, "source.ndjson.gz")
				os.WriteFile(sourceFile, []byte("test content"), 0644)

				objectID, err := storage.Upload(ctx, sourceFile, "backup_20250101.ndjson.gz")

				Convey("It should copy the archive and return its name", func() {
					So(err, ShouldBeNil)
					So(objectID, ShouldEqual, "backup_20250101.ndjson.gz")

					content, err := os.ReadFile(storage.GetPath(objectID))
					So(err, ShouldBeNil)
					So(string(content), ShouldEqual, "test content")

					_, err = os.Stat(storage.GetPath(objectID) + ".part")
					So(os.IsNotExist(err), ShouldBeTrue)
				})
			})

			Convey("When the name contains directories", func() {
				sourceFile := filepath.Join(tempDir, "source.ndjson")
				os.WriteFile(sourceFile, []byte("x"), 0644)

				objectID, err := storage.Upload(ctx, sourceFile, "../../escape.ndjson")

				Convey("It should stay inside the base path", func() {
					So(err, ShouldBeNil)
					So(objectID, ShouldEqual, "escape.ndjson")
					So(storage.GetPath(objectID), ShouldEqual, filepath.Join(mirror, "escape.ndjson"))
				})
			})

			Convey("When source file does not exist", func() {
				_, err := storage.Upload(ctx, "nonexistent.txt", "uploaded.txt")

				Convey("It should return error", func() {
					So(err, ShouldNotBeNil)
					So(err.Error(), ShouldContainSubstring, "failed to open source")
				})
			})

			Convey("When the context is cancelled", func() {
				sourceFile := filepath.Join(tempDir, "source.ndjson")
				os.WriteFile(sourceFile, []byte("x"), 0644)

				cancelled, cancel := context.WithCancel(ctx)
				cancel()
				_, err := storage.Upload(cancelled, sourceFile, "cancelled.ndjson")

				Convey("It should fail and leave nothing behind", func() {
					So(err, ShouldNotBeNil)
					_, statErr := os.Stat(storage.GetPath("cancelled.ndjson"))
					So(os.IsNotExist(statErr), ShouldBeTrue)
				})
			})
		})

		Convey("Delete method", func() {
			storage, _ := NewLocal(tempDir)
			ctx := context.Background()

			Convey("When deleting existing file", func() {
				testFile := "delete_me.txt"
				os.WriteFile(filepath.Join(tempDir, testFile), []byte("test"), 0644)

				err := storage.Delete(ctx, testFile)

				Convey("It should delete successfully", func() {
					So(err, ShouldBeNil)

					_, err := os.Stat(filepath.Join(tempDir, testFile))
					So(os.IsNotExist(err), ShouldBeTrue)
				})
			})

			Convey("When deleting non-existent file", func() {
				err := storage.Delete(ctx, "nonexistent.txt")

				Convey("It should return error", func() {
					So(err, ShouldNotBeNil)
					So(err.Error(), ShouldContainSubstring, "failed to delete file")
				})
			})
		})
	})
}
