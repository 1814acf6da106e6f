package token

import (
	"autodealer/internal/config"
)

// NewCodecFromConfig builds a codec, verifying signatures only when enabled
func NewCodecFromConfig(cfg config.TokenConfig) (*Codec, error) {
	if !cfg.Verify {
		return NewCodec(), nil
	}

	var opts []Option
	if cfg.HMACSecret != "" {
		opts = append(opts, WithHMACSecret([]byte(cfg.HMACSecret)))
	}
	if cfg.PublicKeyPath != "" {
		key, err := LoadRSAPublicKey(cfg.PublicKeyPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithRSAPublicKey(key))
	}
	return NewCodec(opts...), nil
}
