package relocation

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

const dirPerm = 0755

// copyDir copies src onto dst recursively. Files already present in dst are
// overwritten; anything else in dst is left alone.
func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			return os.MkdirAll(target, dirPerm)
		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				return err
			}

			return copyFile(path, target, info.Mode().Perm())
		default:
			// sockets, devices and symlinks are not part of the managed tree
			return nil
		}
	})
}

func copyFile(src, dst string, perm fs.FileMode) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), dirPerm); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, out.Close())
	}()

	_, err = io.Copy(out, in)

	return err
}

func exists(path string) bool {
	_, err := os.Stat(path)

	return err == nil
}
