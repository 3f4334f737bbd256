package repo

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
)

const priceColumns = `id,unit_id,version,price,valid_from,valid_to,active,negotiated_by,authorized_by,COALESCE(motive,''),created_at`

func scanPrice(row rowScanner) (domain.NegotiatedPrice, error) {
	var p domain.NegotiatedPrice
	var price string
	var validTo sql.NullString
	var active int
	err := row.Scan(&p.ID, &p.UnitID, &p.Version, &price, &p.ValidFrom, &validTo, &active, &p.NegotiatedBy, &p.AuthorizedBy, &p.Motive, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Price, err = decimal.NewFromString(price)
	if err != nil {
		return p, err
	}
	p.ValidTo = stringPtr(validTo)
	p.Active = active == 1
	return p, nil
}

// MaxPriceVersion returns the highest stored version for the unit, 0 when none exists.
func (r Repo) MaxPriceVersion(ctx context.Context, unitID string) (int, error) {
	var v int
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(version),0) FROM negotiated_prices WHERE unit_id=?`, unitID).Scan(&v)
	return v, err
}

// DeactivatePrices closes every active price of the unit at validTo.
func (r Repo) DeactivatePrices(ctx context.Context, unitID, validTo string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE negotiated_prices SET active=0, valid_to=? WHERE unit_id=? AND active=1`, validTo, unitID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r Repo) InsertPrice(ctx context.Context, p domain.NegotiatedPrice) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO negotiated_prices(id,unit_id,version,price,valid_from,valid_to,active,negotiated_by,authorized_by,motive,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.UnitID, p.Version, p.Price.String(), p.ValidFrom, nullableStringPtr(p.ValidTo), boolInt(p.Active),
		p.NegotiatedBy, p.AuthorizedBy, nullable(p.Motive), p.CreatedAt)
	return err
}

func (r Repo) ActivePrice(ctx context.Context, unitID string) (domain.NegotiatedPrice, error) {
	return scanPrice(r.DB.QueryRowContext(ctx, `SELECT `+priceColumns+` FROM negotiated_prices WHERE unit_id=? AND active=1`, unitID))
}

func (r Repo) CountActivePrices(ctx context.Context, unitID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM negotiated_prices WHERE unit_id=? AND active=1`, unitID).Scan(&n)
	return n, err
}

// PriceHistory lists every version of the unit's price, newest first.
func (r Repo) PriceHistory(ctx context.Context, unitID string) ([]domain.NegotiatedPrice, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+priceColumns+` FROM negotiated_prices WHERE unit_id=? ORDER BY version DESC`, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.NegotiatedPrice
	for rows.Next() {
		p, err := scanPrice(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
