// README: Driver pay-model definitions (driver type × pay type × rate).
package driverpay

import (
	"fmt"

	"github.com/shopspring/decimal"

	"dispatch/internal/apperr"
	"dispatch/internal/types"
)

type DriverType string

const (
	DriverCompany       DriverType = "company"
	DriverOwnerOperator DriverType = "owner_operator"
	DriverLocal         DriverType = "local_driver"
)

type PayType string

const (
	PayPercentageOfCarrierPay PayType = "percentage_of_carrier_pay"
	PayDispatchFeePercent     PayType = "dispatch_fee_percent"
	PayPerMile                PayType = "per_mile"
	PayPerCar                 PayType = "per_car"
)

// Driver is the stored row. Its pay fields are read-only input to the calculator.
type Driver struct {
	ID         types.ID
	TenantID   types.ID
	Name       string
	DriverType DriverType
	PayType    PayType
	PayRate    decimal.Decimal
}

// PayModel is closed over the variants in this file.
type PayModel interface {
	payModel()
	Rate() decimal.Decimal
}

// PercentageOfNet pays rate% of trip revenue net of broker fees.
// Stored as pay type percentage_of_carrier_pay.
type PercentageOfNet struct{ rate decimal.Decimal }

// DispatchFee keeps rate% of net revenue for the company; the driver gets the rest.
type DispatchFee struct{ rate decimal.Decimal }

type PerMile struct{ rate decimal.Decimal }

type PerCar struct{ rate decimal.Decimal }

func (PercentageOfNet) payModel() {}
func (DispatchFee) payModel()     {}
func (PerMile) payModel()         {}
func (PerCar) payModel()          {}

func (m PercentageOfNet) Rate() decimal.Decimal { return m.rate }
func (m DispatchFee) Rate() decimal.Decimal     { return m.rate }
func (m PerMile) Rate() decimal.Decimal         { return m.rate }
func (m PerCar) Rate() decimal.Decimal          { return m.rate }

var ErrUnknownPayType = apperr.Validation("unknown driver pay type")

// Model resolves the driver's stored pay fields into a PayModel.
func (d *Driver) Model() (PayModel, error) {
	return NewPayModel(d.PayType, d.PayRate)
}

func NewPayModel(t PayType, rate decimal.Decimal) (PayModel, error) {
	switch t {
	case PayPercentageOfCarrierPay:
		return PercentageOfNet{rate: rate}, nil
	case PayDispatchFeePercent:
		return DispatchFee{rate: rate}, nil
	case PayPerMile:
		return PerMile{rate: rate}, nil
	case PayPerCar:
		return PerCar{rate: rate}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPayType, t)
	}
}

var ErrUnknownDriverType = apperr.Validation("unknown driver type")

// ParseDriverType maps a stored driver_type value onto the known driver types.
func ParseDriverType(s string) (DriverType, error) {
	switch DriverType(s) {
	case DriverCompany, DriverOwnerOperator, DriverLocal:
		return DriverType(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDriverType, s)
}
