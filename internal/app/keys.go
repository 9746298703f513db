package app

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"go.trai.ch/bincache/internal/core/domain"
	"go.trai.ch/zerr"
)

// KeysOptions configuration for the Keys method.
type KeysOptions struct {
	// Mirror restricts the operation to one mirror name or URL.
	Mirror string
	// Trust adds every listed key to the public keyring.
	Trust bool
	// Export publishes the local public keys instead of listing.
	Export bool
}

// Keys lists the public keys published on the mirrors, optionally trusting
// them, or publishes the local public keys. It returns the key URLs.
func (a *App) Keys(ctx context.Context, opts KeysOptions) ([]string, error) {
	var urls []string
	err := a.run(ctx, "keys", func(ctx context.Context, s *session) error {
		var err error
		if opts.Export {
			urls, err = a.exportKeys(ctx, s, opts.Mirror)
			return err
		}

		var names []string
		if opts.Mirror != "" {
			names = []string{opts.Mirror}
		}
		mirrors, err := s.fetchMirrors(names)
		if err != nil {
			return err
		}
		for _, m := range mirrors {
			found, err := a.mirrorKeys(ctx, s, m.FetchURL, opts.Trust)
			if err != nil {
				return err
			}
			urls = append(urls, found...)
		}
		return nil
	})
	return urls, err
}

func (a *App) mirrorKeys(ctx context.Context, s *session, mirrorURL string, trust bool) ([]string, error) {
	keys, err := a.storage.List(ctx, domain.BuildCacheURL(mirrorURL, domain.KeysDirName))
	if err != nil {
		a.logger.Warn(fmt.Sprintf("unable to list keys on %s", mirrorURL))
		return nil, nil
	}

	var urls []string
	for _, k := range keys {
		if strings.Contains(k, "/") || !strings.HasSuffix(k, domain.PublicKeyExt) {
			continue
		}
		u := domain.BuildCacheURL(mirrorURL, domain.KeysDirName, k)
		urls = append(urls, u)
		if !trust {
			continue
		}
		if err := a.trustKey(ctx, s, u); err != nil {
			return nil, zerr.With(err, "mirror", mirrorURL)
		}
	}
	return urls, nil
}

func (a *App) trustKey(ctx context.Context, s *session, url string) error {
	rc, err := a.storage.Get(ctx, url)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	ids, err := s.signer.Trust(rc)
	if err != nil {
		return zerr.With(err, "path", url)
	}
	a.logger.Info(fmt.Sprintf("trusted %s from %s", strings.Join(ids, ", "), url))
	return nil
}

// exportKeys pushes the local public keys as one file named after its content.
func (a *App) exportKeys(ctx context.Context, s *session, mirror string) ([]string, error) {
	target, err := s.pushTarget(mirror)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := s.signer.ExportPublicKeys(&buf); err != nil {
		return nil, err
	}
	data := buf.Bytes()
	name := a.hasher.HashBytes(data)[:16] + domain.PublicKeyExt

	tmp, err := os.CreateTemp(s.stageDir, "export-*"+domain.PublicKeyExt)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrStoreWriteFailed.Error())
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()), "path", tmp.Name())
	}

	url := domain.BuildCacheURL(target.PushTarget(), domain.KeysDirName, name)
	if err := a.storage.Put(ctx, tmp.Name(), url); err != nil {
		return nil, zerr.With(err, "mirror", target.PushTarget())
	}
	a.logger.Info(fmt.Sprintf("exported public keys to %s", url))
	return []string{url}, nil
}
