//go:build js && wasm

package lockfile

import "os"

// WASM is single-process; every lock trivially succeeds.

func flockSharedBlocking(f *os.File) error      { return nil }
func flockSharedNonBlock(f *os.File) error      { return nil }
func flockExclusiveBlocking(f *os.File) error   { return nil }
func flockExclusiveNonBlock(f *os.File) error   { return nil }
func flockUnlock(f *os.File) error              { return nil }
