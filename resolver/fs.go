package resolver

import (
	"io/fs"
	"os"
)

func localDirFS(root string) fs.FS {
	return os.DirFS(root)
}
