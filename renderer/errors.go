package renderer

import "errors"

var (
	ErrNoVolume           = errors.New("renderer: no volume loaded")
	ErrNoTransferFunction = errors.New("renderer: no transfer function defined")
	ErrStaleBricks        = errors.New("renderer: brick grid does not match the loaded volume")
	ErrNoDevice           = errors.New("renderer: no compute device could be initialized")
	ErrFrameSkipped       = errors.New("renderer: frame skipped")
	ErrClosed             = errors.New("renderer: renderer closed")
)
