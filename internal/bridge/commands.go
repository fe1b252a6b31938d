package bridge

import (
	"context"
	"fmt"

	"fpbridge/internal/fpdev"
)

func (b *Bridge) cmdInit(ctx context.Context, command string, _ any) (any, error) {
	return nil, b.withDevice(ctx, command, func(d fpdev.Device) error {
		if err := d.Init(); err != nil {
			return fmt.Errorf("init: %w", err)
		}
		return nil
	})
}

// cmdOpen opens the module. If the first attempt fails the SDK is
// re-initialised and the open retried once. The reply is whether the module
// ended up open; a failed open is a false result, not an error.
func (b *Bridge) cmdOpen(ctx context.Context, command string, _ any) (any, error) {
	var opened bool
	err := b.withDevice(ctx, command, func(d fpdev.Device) error {
		err := d.Open()
		if err != nil {
			b.log.Warn().Err(err).Msg("open failed, re-initialising")
			if ierr := d.Init(); ierr != nil {
				b.recordErr(fmt.Errorf("init: %w", ierr))
				b.log.Warn().Err(ierr).Msg("init after failed open")
			}
			err = d.Open()
		}
		if err != nil {
			b.recordErr(fmt.Errorf("open: %w", err))
			b.log.Error().Err(err).Msg("open failed")
			return nil
		}
		opened = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	b.setDeviceOpen(opened)
	return opened, nil
}

func (b *Bridge) cmdClose(ctx context.Context, command string, _ any) (any, error) {
	err := b.withDevice(ctx, command, func(d fpdev.Device) error {
		if err := d.Close(); err != nil {
			return fmt.Errorf("close: %w", err)
		}
		return nil
	})
	if err == nil {
		b.setDeviceOpen(false)
	}
	return nil, err
}

// cmdCompare matches two templates. A threshold argument becomes the
// device match value before the comparison and stays in effect afterwards.
func (b *Bridge) cmdCompare(ctx context.Context, command string, args any) (any, error) {
	a, err := parseCompareArgs(command, args, true)
	if err != nil {
		return nil, err
	}
	var match bool
	err = b.withDevice(ctx, command, func(d fpdev.Device) error {
		if a.hasThreshold {
			if err := d.SetMatchThreshold(a.threshold); err != nil {
				return fmt.Errorf("set match value: %w", err)
			}
		}
		m, err := d.Compare(a.src, a.dest)
		if err != nil {
			return fmt.Errorf("compare: %w", err)
		}
		match = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return match, nil
}

func (b *Bridge) cmdCompareValue(ctx context.Context, command string, args any) (any, error) {
	a, err := parseCompareArgs(command, args, false)
	if err != nil {
		return nil, err
	}
	var score int
	err = b.withDevice(ctx, command, func(d fpdev.Device) error {
		s, err := d.CompareScore(a.src, a.dest)
		if err != nil {
			return fmt.Errorf("compare score: %w", err)
		}
		score = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return score, nil
}

func (b *Bridge) cmdSetMatchValue(ctx context.Context, command string, args any) (any, error) {
	v, err := intArg(command, args)
	if err != nil {
		return nil, err
	}
	return nil, b.withDevice(ctx, command, func(d fpdev.Device) error {
		if err := d.SetMatchThreshold(v); err != nil {
			return fmt.Errorf("set match value: %w", err)
		}
		return nil
	})
}

func (b *Bridge) cmdGetMatchValue(ctx context.Context, command string, _ any) (any, error) {
	var v int
	err := b.withDevice(ctx, command, func(d fpdev.Device) error {
		n, err := d.MatchThreshold()
		if err != nil {
			return fmt.Errorf("get match value: %w", err)
		}
		v = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// cmdSetColor takes useDefault: true renders black ridges, false red.
func (b *Bridge) cmdSetColor(ctx context.Context, command string, args any) (any, error) {
	useDefault, err := boolArg(command, args)
	if err != nil {
		return nil, err
	}
	c := fpdev.ColorRed
	if useDefault {
		c = fpdev.ColorBlack
	}
	return nil, b.withDevice(ctx, command, func(d fpdev.Device) error {
		if err := d.SetColor(c); err != nil {
			return fmt.Errorf("set color: %w", err)
		}
		return nil
	})
}

func (b *Bridge) cmdSetQualityThreshold(ctx context.Context, command string, args any) (any, error) {
	v, err := intArg(command, args)
	if err != nil {
		return nil, err
	}
	return nil, b.withDevice(ctx, command, func(d fpdev.Device) error {
		if err := d.SetQualityThreshold(v); err != nil {
			return fmt.Errorf("set quality threshold: %w", err)
		}
		return nil
	})
}

// cmdDestroy releases the SDK. The bridge itself stays up; Init and
// openFpModule bring the device back.
func (b *Bridge) cmdDestroy(ctx context.Context, command string, _ any) (any, error) {
	err := b.withDevice(ctx, command, func(d fpdev.Device) error {
		if err := d.Destroy(); err != nil {
			return fmt.Errorf("destroy: %w", err)
		}
		return nil
	})
	b.setDeviceOpen(false)
	return nil, err
}
