package model

import "context"

// Limit bounds the number of concurrent SynthesizeToFile calls on h to n.
// With n == 1 calls are serialized. n <= 0 returns h unchanged.
func Limit(h Host, n int) Host {
	if n <= 0 {
		return h
	}
	return &limited{Host: h, sem: make(chan struct{}, n)}
}

type limited struct {
	Host
	sem chan struct{}
}

func (l *limited) SynthesizeToFile(ctx context.Context, text, dst string) error {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.sem }()

	return l.Host.SynthesizeToFile(ctx, text, dst)
}
