//go:build !linux

package main

import (
	"errors"
	"os"
)

func grabDevice(*os.File) error {
	return errors.New("EVIOCGRAB is only supported on linux")
}
