//go:build !linux

package adapter

import "errors"

func openRFCOMM(desc Descriptor) (Channel, error) {
	return nil, errors.New("bluetooth transport is only supported on linux")
}
