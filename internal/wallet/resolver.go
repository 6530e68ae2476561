package wallet

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/satsflow/SatsFlowBot/internal/errors"
	"github.com/satsflow/SatsFlowBot/internal/secret"
)

// Store is the persistence seam for wallet configurations.
type Store interface {
	FindWallet(npub string) (*Config, error)
	UpsertWallet(cfg *Config) error
}

// Resolved is a wallet configuration ready for dispatch: the NWC secret is
// decrypted. It lives on the stack of one message handler and is never
// persisted or cached.
type Resolved struct {
	Npub             string
	Kind             BackendKind
	NWCUri           string
	LightningAddress string
	LNbitsWalletID   string
}

type Resolver struct {
	store     Store
	box       *secret.Box
	sharedNWC string // optional process-wide fallback wallet, plaintext from config
}

func NewResolver(store Store, box *secret.Box, sharedNWC string) *Resolver {
	return &Resolver{store: store, box: box, sharedNWC: sharedNWC}
}

// Resolve loads the user's wallet, decrypting the NWC credential on every
// call. Users without a record fall back to the shared wallet if one is
// configured.
func (r *Resolver) Resolve(npub string) (*Resolved, error) {
	cfg, err := r.store.FindWallet(npub)
	if err != nil || cfg == nil {
		if r.sharedNWC != "" {
			log.Debugf("[resolver] no wallet row for %s, using shared wallet", npub)
			return &Resolved{Npub: npub, Kind: BackendNWC, NWCUri: r.sharedNWC}, nil
		}
		return nil, errors.ErrNoWallet
	}

	resolved := &Resolved{
		Npub:             cfg.Npub,
		Kind:             cfg.Kind,
		LightningAddress: cfg.LightningAddress,
		LNbitsWalletID:   cfg.LNbitsWalletID,
	}
	switch cfg.Kind {
	case BackendNWC:
		uri, err := r.box.Decrypt(cfg.NWCUri)
		if err != nil {
			return nil, errors.New(errors.InvalidNWCUriError, fmt.Errorf("could not decrypt wallet credential: %v", err))
		}
		resolved.NWCUri = uri
	case BackendLNbits:
		if cfg.LNbitsWalletID == "" {
			return nil, errors.New(errors.NoBackendError, fmt.Errorf("wallet row for %s has no backend wallet id", npub))
		}
	default:
		return nil, errors.New(errors.NoBackendError, fmt.Errorf("unknown backend kind %q", cfg.Kind))
	}
	return resolved, nil
}
