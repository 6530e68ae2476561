// Package database persists wallet configurations and gateway identity
// mappings in sqlite via gorm.
package database

import (
	"strings"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/satsflow/SatsFlowBot/internal/wallet"
)

// GatewayLink maps one chat-gateway identity to the npub it was assigned
// during onboarding. A user may be linked from several gateways.
type GatewayLink struct {
	GatewayKind string `gorm:"primaryKey"`
	GatewayUser string `gorm:"primaryKey"`
	Npub        string `gorm:"index"`
}

type DB struct {
	orm *gorm.DB
}

func Open(path string) (*DB, error) {
	orm, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		FullSaveAssociations:                     true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := orm.AutoMigrate(&wallet.Config{}, &GatewayLink{}); err != nil {
		return nil, err
	}
	return &DB{orm: orm}, nil
}

// FindWallet returns the wallet configuration for npub, or nil when the user
// has none yet.
func (db *DB) FindWallet(npub string) (*wallet.Config, error) {
	cfg := &wallet.Config{}
	tx := db.orm.Where("npub = ?", npub).First(cfg)
	if tx.Error == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if tx.Error != nil {
		return nil, tx.Error
	}
	return cfg, nil
}

// UpsertWallet saves cfg, preserving previously stored optional fields the
// new value leaves empty.
func (db *DB) UpsertWallet(cfg *wallet.Config) error {
	existing, err := db.FindWallet(cfg.Npub)
	if err != nil {
		return err
	}
	if existing != nil {
		if cfg.NWCUri == "" {
			cfg.NWCUri = existing.NWCUri
		}
		if cfg.LightningAddress == "" {
			cfg.LightningAddress = existing.LightningAddress
		}
		if cfg.LNbitsWalletID == "" {
			cfg.LNbitsWalletID = existing.LNbitsWalletID
			cfg.LNbitsAccountID = existing.LNbitsAccountID
			cfg.LNbitsLabel = existing.LNbitsLabel
		}
		cfg.CreatedAt = existing.CreatedAt
	}
	return db.orm.Save(cfg).Error
}

// DeleteWallet removes the wallet configuration and all gateway links of
// npub. Used by the administrative wipe endpoint.
func (db *DB) DeleteWallet(npub string) error {
	if err := db.orm.Where("npub = ?", npub).Delete(&wallet.Config{}).Error; err != nil {
		return err
	}
	return db.orm.Where("npub = ?", npub).Delete(&GatewayLink{}).Error
}

// FindNpub resolves a gateway identity to the npub it was linked to, or ""
// when the sender is unknown.
func (db *DB) FindNpub(gatewayKind, gatewayUser string) (string, error) {
	link := &GatewayLink{}
	tx := db.orm.
		Where("gateway_kind = ? AND gateway_user = ? COLLATE NOCASE", strings.ToLower(gatewayKind), gatewayUser).
		First(link)
	if tx.Error == gorm.ErrRecordNotFound {
		return "", nil
	}
	if tx.Error != nil {
		return "", tx.Error
	}
	return link.Npub, nil
}

// FindGateway returns a gateway identity linked to npub, or empty strings
// when the user was never linked. Used to address chat prompts triggered
// upstream.
func (db *DB) FindGateway(npub string) (string, string, error) {
	link := &GatewayLink{}
	tx := db.orm.Where("npub = ?", npub).First(link)
	if tx.Error == gorm.ErrRecordNotFound {
		return "", "", nil
	}
	if tx.Error != nil {
		return "", "", tx.Error
	}
	return link.GatewayKind, link.GatewayUser, nil
}

// SaveLink records the gateway identity to npub mapping.
func (db *DB) SaveLink(gatewayKind, gatewayUser, npub string) error {
	link := &GatewayLink{
		GatewayKind: strings.ToLower(gatewayKind),
		GatewayUser: gatewayUser,
		Npub:        npub,
	}
	err := db.orm.Save(link).Error
	if err != nil {
		log.Errorf("[database] could not link %s/%s to %s: %v", gatewayKind, gatewayUser, npub, err)
	}
	return err
}
