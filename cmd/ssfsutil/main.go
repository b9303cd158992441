// Command ssfsutil is a small CLI for creating, inspecting and poking at an
// ssfs disk image, in the spirit of the teacher's cmd/sqfs: a thin argv
// dispatcher over the library's own API, with no behaviour of its own.
package main

import (
	"fmt"
	iofs "io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/cishoon/ssfs"
	"github.com/cishoon/ssfs/converter"
	"github.com/cishoon/ssfs/fs"
	"github.com/cishoon/ssfs/image"
	"github.com/cishoon/ssfs/snapshot"
	"github.com/cishoon/ssfs/sync"
	"github.com/cishoon/ssfs/util"
)

const usage = `ssfsutil - ssfs disk image CLI

Usage:
  ssfsutil init   <image> <size>            Create and initialise a new image of <size> bytes
  ssfsutil ls     <image> [<path>]          List the entries of <path> (default: cwd)
  ssfsutil mkdir  <image> <name>            Create a directory named <name> in cwd
  ssfsutil touch  <image> <name>            Create an empty file named <name> in cwd
  ssfsutil rm     <image> <name>            Remove a file or empty directory from cwd
  ssfsutil cat    <image> <path>            Print a file's contents
  ssfsutil write  <image> <name> <text>     Write <text> at the start of file <name> in cwd
  ssfsutil stat   <image> <path>            Show an inode's metadata
  ssfsutil flist  <image>                   List every inode reachable from the root
  ssfsutil backup <image> <archive>         Write an lz4-compressed snapshot of <image>
  ssfsutil restore <archive> <image>        Restore <image> from an lz4 snapshot
  ssfsutil dump    <image> <sector>         Hex-dump one raw 512-byte sector
  ssfsutil import  <image> <hostdir>        Copy a host directory tree into cwd
  ssfsutil verify  <image> <hostdir>        Compare cwd against a host directory tree
  ssfsutil help                             Show this help message
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = runInit(os.Args[2:])
	case "ls":
		err = runLs(os.Args[2:])
	case "mkdir":
		err = runMkdir(os.Args[2:])
	case "touch":
		err = runTouch(os.Args[2:])
	case "rm":
		err = runRm(os.Args[2:])
	case "cat":
		err = runCat(os.Args[2:])
	case "write":
		err = runWrite(os.Args[2:])
	case "stat":
		err = runStat(os.Args[2:])
	case "flist":
		err = runFlist(os.Args[2:])
	case "backup":
		err = runBackup(os.Args[2:])
	case "restore":
		err = runRestore(os.Args[2:])
	case "dump":
		err = runDump(os.Args[2:])
	case "import":
		err = runImport(os.Args[2:])
	case "verify":
		err = runVerify(os.Args[2:])
	case "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", os.Args[1])
		fmt.Print(usage)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func runInit(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: ssfsutil init <image> <size>")
	}
	size, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", args[1], err)
	}
	fsys, err := ssfs.CreateAndInit(args[0], size)
	if err != nil {
		return err
	}
	return fsys.Close()
}

func withImage(path string, fn func(*fs.Filesystem) error) error {
	fsys, err := ssfs.Open(path)
	if err != nil {
		return err
	}
	if err := fn(fsys); err != nil {
		_ = fsys.Close()
		return err
	}
	return fsys.Close()
}

func runLs(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: ssfsutil ls <image> [<path>]")
	}
	return withImage(args[0], func(fsys *fs.Filesystem) error {
		if len(args) > 1 {
			if err := fsys.Cd(args[1]); err != nil {
				return err
			}
		}
		names, err := fsys.Ls()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	})
}

func runMkdir(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: ssfsutil mkdir <image> <name>")
	}
	return withImage(args[0], func(fsys *fs.Filesystem) error {
		return fsys.Mkdir(args[1])
	})
}

func runTouch(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: ssfsutil touch <image> <name>")
	}
	return withImage(args[0], func(fsys *fs.Filesystem) error {
		return fsys.Touch(args[1])
	})
}

func runRm(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: ssfsutil rm <image> <name>")
	}
	return withImage(args[0], func(fsys *fs.Filesystem) error {
		return fsys.Rm(args[1])
	})
}

func runCat(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: ssfsutil cat <image> <path>")
	}
	return withImage(args[0], func(fsys *fs.Filesystem) error {
		data, err := fsys.Cat(args[1])
		if err != nil {
			return err
		}
		os.Stdout.Write(data)
		return nil
	})
}

func runWrite(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: ssfsutil write <image> <name> <text>")
	}
	return withImage(args[0], func(fsys *fs.Filesystem) error {
		if !fsys.Exists(args[1]) {
			if err := fsys.Touch(args[1]); err != nil {
				return err
			}
		}
		fd, err := fsys.Open(args[1])
		if err != nil {
			return err
		}
		if _, err := fsys.Write(fd, []byte(args[2])); err != nil {
			_ = fsys.Close(fd)
			return err
		}
		return fsys.Close(fd)
	})
}

func runStat(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: ssfsutil stat <image> <path>")
	}
	return withImage(args[0], func(fsys *fs.Filesystem) error {
		id, err := fsys.Lookup(args[1])
		if err != nil {
			return err
		}
		st, err := fsys.Stat(id)
		if err != nil {
			return err
		}
		fmt.Printf("inode=%d type=%s size=%d\n", id, st.Type, st.Size)
		return nil
	})
}

func runFlist(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: ssfsutil flist <image>")
	}
	return withImage(args[0], func(fsys *fs.Filesystem) error {
		entries, err := fsys.FList()
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%d\t%s\n", e.InodeID, e.Name)
		}
		return nil
	})
}

func runBackup(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: ssfsutil backup <image> <archive>")
	}
	out, err := os.Create(args[1])
	if err != nil {
		return err
	}
	defer out.Close()
	return snapshot.Write(out, args[0])
}

func runRestore(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: ssfsutil restore <archive> <image>")
	}
	in, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer in.Close()
	return snapshot.Restore(in, args[1])
}

func runDump(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: ssfsutil dump <image> <sector>")
	}
	sector, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid sector %q: %w", args[1], err)
	}
	dev, err := image.OpenFromPath(args[0])
	if err != nil {
		return err
	}
	defer dev.Close()
	data, err := dev.Read(sector, 1)
	if err != nil {
		return err
	}
	fmt.Print(util.DumpByteSlice(data, 16, true, true, false, nil))
	return nil
}

func runImport(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: ssfsutil import <image> <hostdir>")
	}
	return withImage(args[0], func(fsys *fs.Filesystem) error {
		return sync.CopyFileSystem(os.DirFS(args[1]), fsys)
	})
}

func runVerify(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: ssfsutil verify <image> <hostdir>")
	}
	return withImage(args[0], func(fsys *fs.Filesystem) error {
		pwd, err := fsys.Pwd()
		if err != nil {
			return err
		}
		sub := strings.TrimPrefix(pwd, "/")
		if sub == "" {
			sub = "."
		}
		target, err := iofs.Sub(converter.New(fsys), sub)
		if err != nil {
			return err
		}
		return sync.CompareFS(os.DirFS(args[1]), target)
	})
}
