package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fairyhunter13/lowest-price-service/internal/model"
)

type historyRow struct {
	ID         uint64          `gorm:"primaryKey;autoIncrement"`
	SKU        string          `gorm:"column:sku;type:varchar(191);not null;index:idx_history_pair,priority:1"`
	Retailer   string          `gorm:"type:varchar(191);not null;index:idx_history_pair,priority:2"`
	Price      decimal.Decimal `gorm:"type:decimal(40,12);not null"`
	URL        string          `gorm:"type:text"`
	FromDate   *time.Time
	ToDate     *time.Time
	ReceivedAt time.Time `gorm:"not null;index"`
}

func (historyRow) TableName() string { return "price_history" }

type latestRow struct {
	SKU        string          `gorm:"column:sku;type:varchar(191);primaryKey;index:idx_latest_sku_price,priority:1"`
	Retailer   string          `gorm:"type:varchar(191);primaryKey"`
	Price      decimal.Decimal `gorm:"type:decimal(40,12);not null;index:idx_latest_sku_price,priority:2"`
	URL        string          `gorm:"type:text"`
	ReceivedAt time.Time       `gorm:"not null"`
}

func (latestRow) TableName() string { return "latest_prices" }

type lowestRow struct {
	SKU        string          `gorm:"column:sku;type:varchar(191);primaryKey"`
	Retailer   string          `gorm:"type:varchar(191);not null"`
	Price      decimal.Decimal `gorm:"type:decimal(40,12);not null"`
	URL        string          `gorm:"type:text"`
	ReceivedAt time.Time       `gorm:"not null"`
}

func (lowestRow) TableName() string { return "lowest_prices" }

// MySQLEngine is the mirrored production engine: writes run against the
// master in one gorm transaction, reads are served from a regional replica
// whose propagation is the database's replication layer, not ours.
type MySQLEngine struct {
	master  *gorm.DB
	replica *gorm.DB
}

// OpenMySQL connects to the master and replica and migrates the schema on
// the master.
func OpenMySQL(masterDSN, replicaDSN string) (*MySQLEngine, error) {
	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}
	master, err := gorm.Open(mysql.Open(masterDSN), cfg)
	if err != nil {
		return nil, fmt.Errorf("connect master: %w", err)
	}
	replica, err := gorm.Open(mysql.Open(replicaDSN), cfg)
	if err != nil {
		return nil, fmt.Errorf("connect replica: %w", err)
	}
	if err := master.AutoMigrate(&historyRow{}, &latestRow{}, &lowestRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &MySQLEngine{master: master, replica: replica}, nil
}

// Update implements Engine. Per-sku serialization comes from the exclusive
// row lock Lowest takes on the sku's lowest-price row; the first insert for
// a sku is covered by the primary-key upsert.
func (e *MySQLEngine) Update(ctx context.Context, sku string, fn func(Tx) error) error {
	return e.master.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&mysqlTx{tx: tx})
	})
}

// Replica returns the regional read-only view of the lowest-price index.
func (e *MySQLEngine) Replica() ReplicaReader {
	return &mysqlReplica{db: e.replica}
}

type mysqlTx struct{ tx *gorm.DB }

func (t *mysqlTx) AppendHistory(e model.HistoryEntry) (model.HistoryEntry, error) {
	row := historyRow{
		SKU:        e.SKU,
		Retailer:   e.Retailer,
		Price:      e.Price,
		URL:        e.URL,
		FromDate:   e.FromDate,
		ToDate:     e.ToDate,
		ReceivedAt: e.ReceivedAt,
	}
	if err := t.tx.Create(&row).Error; err != nil {
		return model.HistoryEntry{}, fmt.Errorf("append history: %w", err)
	}
	e.ID = row.ID
	return e, nil
}

func (t *mysqlTx) Latest(sku, retailer string) (model.LatestEntry, bool, error) {
	var row latestRow
	err := t.tx.Where("sku = ? AND retailer = ?", sku, retailer).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.LatestEntry{}, false, nil
	}
	if err != nil {
		return model.LatestEntry{}, false, fmt.Errorf("read latest: %w", err)
	}
	return latestFromRow(row), true, nil
}

func (t *mysqlTx) UpsertLatest(e model.LatestEntry) error {
	row := latestRow{SKU: e.SKU, Retailer: e.Retailer, Price: e.Price, URL: e.URL, ReceivedAt: e.ReceivedAt}
	err := t.tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku"}, {Name: "retailer"}},
		DoUpdates: clause.AssignmentColumns([]string{"price", "url", "received_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert latest: %w", err)
	}
	return nil
}

func (t *mysqlTx) Lowest(sku string) (model.PriceEntry, bool, error) {
	var row lowestRow
	err := t.tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("sku = ?", sku).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.PriceEntry{}, false, nil
	}
	if err != nil {
		return model.PriceEntry{}, false, fmt.Errorf("read lowest: %w", err)
	}
	return entryFromRow(row), true, nil
}

func (t *mysqlTx) UpsertLowest(e model.PriceEntry) error {
	row := lowestRow{SKU: e.SKU, Retailer: e.Retailer, Price: e.Price, URL: e.URL, ReceivedAt: e.ReceivedAt}
	err := t.tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku"}},
		DoUpdates: clause.AssignmentColumns([]string{"retailer", "price", "url", "received_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert lowest: %w", err)
	}
	return nil
}

func (t *mysqlTx) LatestBySKU(sku string) ([]model.LatestEntry, error) {
	var rows []latestRow
	if err := t.tx.Where("sku = ?", sku).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("scan latest: %w", err)
	}
	out := make([]model.LatestEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, latestFromRow(r))
	}
	return out, nil
}

type mysqlReplica struct{ db *gorm.DB }

func (r *mysqlReplica) LowestPrice(ctx context.Context, sku string) (model.PriceEntry, bool, error) {
	var row lowestRow
	err := r.db.WithContext(ctx).Where("sku = ?", sku).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.PriceEntry{}, false, nil
	}
	if err != nil {
		return model.PriceEntry{}, false, fmt.Errorf("replica read: %w", err)
	}
	return entryFromRow(row), true, nil
}

func latestFromRow(r latestRow) model.LatestEntry {
	return model.LatestEntry{SKU: r.SKU, Retailer: r.Retailer, Price: r.Price, URL: r.URL, ReceivedAt: r.ReceivedAt}
}

func entryFromRow(r lowestRow) model.PriceEntry {
	return model.PriceEntry{SKU: r.SKU, Retailer: r.Retailer, Price: r.Price, URL: r.URL, ReceivedAt: r.ReceivedAt}
}
