package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"fisbap/internal/errors"
	"fisbap/internal/payload"
	"fisbap/pkg/ports"
)

// sqliteCatalog denormalizes on_search catalogs into provider/scheme/plan
// rows so ISIN lookups don't re-parse stored payloads.
type sqliteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog builds a catalog over the same database as the message
// store. The store must be the sqlite implementation from this package.
func NewSQLiteCatalog(store ports.MessageStorePort) (ports.CatalogPort, error) {
	s, ok := store.(*sqliteStore)
	if !ok {
		return nil, errors.Configuration("catalog requires the sqlite message store")
	}
	c := &sqliteCatalog{db: s.db}
	if err := c.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}
	return c, nil
}

func (c *sqliteCatalog) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS providers (
			id TEXT NOT NULL,
			transaction_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			bpp_id TEXT NOT NULL DEFAULT '',
			bpp_uri TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (id, transaction_id)
		);

		CREATE TABLE IF NOT EXISTS schemes (
			id TEXT NOT NULL,
			provider_id TEXT NOT NULL,
			transaction_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (id, transaction_id)
		);

		CREATE TABLE IF NOT EXISTS plans (
			id TEXT NOT NULL,
			scheme_id TEXT NOT NULL,
			transaction_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			isin TEXT NOT NULL DEFAULT '',
			amfi_identifier TEXT NOT NULL DEFAULT '',
			rta_identifier TEXT NOT NULL DEFAULT '',
			plan TEXT NOT NULL DEFAULT '',
			option TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (id, transaction_id)
		);
		CREATE INDEX IF NOT EXISTS idx_plans_isin ON plans(isin);

		CREATE TABLE IF NOT EXISTS fulfillment_options (
			id TEXT NOT NULL,
			plan_id TEXT NOT NULL,
			transaction_id TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT '',
			amount_min REAL NOT NULL DEFAULT 0,
			amount_max REAL NOT NULL DEFAULT 0,
			amount_multiple REAL NOT NULL DEFAULT 0,
			PRIMARY KEY (id, plan_id, transaction_id)
		);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Import walks one on_search catalog and upserts every provider, scheme
// item, child plan item, and fulfillment. Returns the number of plans
// imported. Items parent by PARENT_CHILD_RELATIONSHIP: top-level items with
// no parent_item_id are schemes, items referencing one are plans.
func (c *sqliteCatalog) Import(ctx context.Context, transactionID string, raw []byte) (int, error) {
	doc, err := payload.Parse("on_search", raw)
	if err != nil {
		return 0, err
	}

	bppID := doc.StringOr("context.bpp_id", "")
	bppURI := doc.StringOr("context.bpp_uri", "")

	providers, err := doc.Docs("message.catalog.providers")
	if err != nil {
		return 0, err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeInternal, "failed to begin catalog import")
	}
	defer tx.Rollback()

	imported := 0
	for _, prov := range providers {
		provID, err := prov.String("id")
		if err != nil {
			return 0, err
		}
		provName := prov.StringOr("descriptor.name", "")
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO providers (id, transaction_id, name, bpp_id, bpp_uri) VALUES (?, ?, ?, ?, ?)`,
			provID, transactionID, provName, bppID, bppURI)
		if err != nil {
			return 0, errors.Wrap(err, errors.ErrorTypeInternal, "failed to upsert provider")
		}

		items, err := prov.Docs("items")
		if err != nil {
			continue // provider without items is legal
		}
		for _, item := range items {
			if item.Has("parent_item_id") {
				n, err := c.importPlan(ctx, tx, transactionID, item)
				if err != nil {
					return 0, err
				}
				imported += n
			} else {
				if err := c.importScheme(ctx, tx, transactionID, provID, item); err != nil {
					return 0, err
				}
			}
		}

		if err := c.importFulfillments(ctx, tx, transactionID, prov, items); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeInternal, "failed to commit catalog import")
	}
	return imported, nil
}

func (c *sqliteCatalog) importScheme(ctx context.Context, tx *sql.Tx, transactionID, providerID string, item *payload.Doc) error {
	id, err := item.String("id")
	if err != nil {
		return err
	}
	name := item.StringOr("descriptor.name", "")
	category := ""
	if ids, err := item.Slice("category_ids"); err == nil && len(ids) > 0 {
		category, _ = ids[0].(string)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO schemes (id, provider_id, transaction_id, name, category) VALUES (?, ?, ?, ?, ?)`,
		id, providerID, transactionID, name, category)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to upsert scheme")
	}
	return nil
}

func (c *sqliteCatalog) importPlan(ctx context.Context, tx *sql.Tx, transactionID string, item *payload.Doc) (int, error) {
	id, err := item.String("id")
	if err != nil {
		return 0, err
	}
	schemeID := item.StringOr("parent_item_id", "")
	name := item.StringOr("descriptor.name", "")

	var isin, amfi, rta, planCode, option string
	if tags, err := item.Slice("tags"); err == nil {
		isin, _ = payload.TagValue(tags, "PLAN_IDENTIFIERS", "ISIN")
		amfi, _ = payload.TagValue(tags, "PLAN_IDENTIFIERS", "AMFI_IDENTIFIER")
		rta, _ = payload.TagValue(tags, "PLAN_IDENTIFIERS", "RTA_IDENTIFIER")
		planCode, _ = payload.TagValue(tags, "PLAN_OPTIONS", "PLAN")
		option, _ = payload.TagValue(tags, "PLAN_OPTIONS", "OPTION")
	}

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO plans (id, scheme_id, transaction_id, name, isin, amfi_identifier, rta_identifier, plan, option)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, schemeID, transactionID, name, isin, amfi, rta, planCode, option)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeInternal, "failed to upsert plan")
	}
	return 1, nil
}

// importFulfillments records the provider's fulfillment offerings with their
// amount thresholds, attached to every plan item that references them.
func (c *sqliteCatalog) importFulfillments(ctx context.Context, tx *sql.Tx, transactionID string, prov *payload.Doc, items []*payload.Doc) error {
	fulfillments, err := prov.Docs("fulfillments")
	if err != nil {
		return nil // provider without fulfillments is legal
	}

	// By-id index of each fulfillment's type and thresholds
	type ful struct {
		typ      string
		min      float64
		max      float64
		multiple float64
	}
	byID := map[string]ful{}
	for _, f := range fulfillments {
		id := f.StringOr("id", "")
		if id == "" {
			continue
		}
		entry := ful{typ: f.StringOr("type", "")}
		if tags, err := f.Slice("tags"); err == nil {
			if v, ok := payload.TagValue(tags, "THRESHOLDS", "AMOUNT_MIN"); ok {
				entry.min, _ = strconv.ParseFloat(v, 64)
			}
			if v, ok := payload.TagValue(tags, "THRESHOLDS", "AMOUNT_MAX"); ok {
				entry.max, _ = strconv.ParseFloat(v, 64)
			}
			if v, ok := payload.TagValue(tags, "THRESHOLDS", "AMOUNT_MULTIPLES"); ok {
				entry.multiple, _ = strconv.ParseFloat(v, 64)
			}
		}
		byID[id] = entry
	}

	for _, item := range items {
		if !item.Has("parent_item_id") {
			continue
		}
		planID := item.StringOr("id", "")
		ids, err := item.Slice("fulfillment_ids")
		if err != nil {
			continue
		}
		for _, raw := range ids {
			fid, _ := raw.(string)
			entry, ok := byID[fid]
			if !ok {
				continue
			}
			_, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO fulfillment_options (id, plan_id, transaction_id, type, amount_min, amount_max, amount_multiple)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				fid, planID, transactionID, entry.typ, entry.min, entry.max, entry.multiple)
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeInternal, "failed to upsert fulfillment option")
			}
		}
	}
	return nil
}

func (c *sqliteCatalog) SchemeByISIN(ctx context.Context, isin string) (*ports.PlanMatch, error) {
	if isin == "" {
		return nil, errors.Validation("isin is required")
	}

	var match ports.PlanMatch
	row := c.db.QueryRowContext(ctx, `
		SELECT p.id, p.scheme_id, p.transaction_id, p.name, p.isin, p.amfi_identifier, p.rta_identifier,
		       s.id, s.provider_id, s.name, s.category,
		       pr.id, pr.name, pr.bpp_id, pr.bpp_uri, pr.transaction_id
		FROM plans p
		JOIN schemes s ON s.id = p.scheme_id AND s.transaction_id = p.transaction_id
		JOIN providers pr ON pr.id = s.provider_id AND pr.transaction_id = p.transaction_id
		WHERE p.isin = ?
		ORDER BY p.rowid DESC
		LIMIT 1`, isin)

	var planTxn string
	err := row.Scan(
		&match.Plan.ID, &match.Plan.SchemeID, &planTxn, &match.Plan.Name, &match.Plan.ISIN,
		&match.Plan.AMFIID, &match.Plan.RTACode,
		&match.Scheme.ID, &match.Scheme.ProviderID, &match.Scheme.Name, &match.Scheme.Category,
		&match.Provider.ID, &match.Provider.Name, &match.Provider.BPPID, &match.Provider.BPPURI,
		&match.Provider.TransactionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound(fmt.Sprintf("scheme with ISIN %s", isin))
		}
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to look up scheme")
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, plan_id, type, amount_min, amount_max, amount_multiple
		FROM fulfillment_options WHERE plan_id = ? AND transaction_id = ?`,
		match.Plan.ID, planTxn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to load fulfillment options")
	}
	defer rows.Close()
	for rows.Next() {
		var opt ports.FulfillmentOption
		if err := rows.Scan(&opt.ID, &opt.PlanID, &opt.Type, &opt.AmountMin, &opt.AmountMax, &opt.AmountMultiple); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to scan fulfillment option")
		}
		match.Fulfillments = append(match.Fulfillments, opt)
	}
	return &match, rows.Err()
}

func (c *sqliteCatalog) Plans(ctx context.Context) ([]ports.PlanMatch, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT p.id, p.scheme_id, p.name, p.isin, p.amfi_identifier, p.rta_identifier,
		       s.id, s.provider_id, s.name, s.category,
		       pr.id, pr.name, pr.bpp_id, pr.bpp_uri, pr.transaction_id
		FROM plans p
		JOIN schemes s ON s.id = p.scheme_id AND s.transaction_id = p.transaction_id
		JOIN providers pr ON pr.id = s.provider_id AND pr.transaction_id = p.transaction_id
		ORDER BY s.name, p.name`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to list plans")
	}
	defer rows.Close()

	var out []ports.PlanMatch
	for rows.Next() {
		var m ports.PlanMatch
		if err := rows.Scan(
			&m.Plan.ID, &m.Plan.SchemeID, &m.Plan.Name, &m.Plan.ISIN, &m.Plan.AMFIID, &m.Plan.RTACode,
			&m.Scheme.ID, &m.Scheme.ProviderID, &m.Scheme.Name, &m.Scheme.Category,
			&m.Provider.ID, &m.Provider.Name, &m.Provider.BPPID, &m.Provider.BPPURI,
			&m.Provider.TransactionID); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to scan plan")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (c *sqliteCatalog) Providers(ctx context.Context) ([]ports.Provider, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT id, transaction_id, name, bpp_id, bpp_uri FROM providers ORDER BY name")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to list providers")
	}
	defer rows.Close()

	var out []ports.Provider
	for rows.Next() {
		var p ports.Provider
		if err := rows.Scan(&p.ID, &p.TransactionID, &p.Name, &p.BPPID, &p.BPPURI); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to scan provider")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
