package model

import "strings"

// PropertyRecord is the canonical denormalized summary of one property.
// The upstream API has shipped several generations of field names for the
// same logical attributes; RecordWire resolves them so consumers only ever
// see this shape.
type PropertyRecord struct {
	BBL         string   `json:"bbl"`
	Address     string   `json:"address"`
	Borough     string   `json:"borough"`
	BoroughFull string   `json:"borough_full,omitempty"`
	Zipcode     string   `json:"zipcode,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`

	YearBuilt  *int `json:"year_built,omitempty"`
	Floors     *int `json:"floors,omitempty"`
	Stories    *int `json:"stories,omitempty"`
	UnitsRes   *int `json:"units_res,omitempty"`
	UnitsTotal *int `json:"units_total,omitempty"`

	LotSqft       *float64 `json:"lot_sqft,omitempty"`
	BldgArea      *float64 `json:"bldg_area,omitempty"`
	BuildingDims  string   `json:"building_dimensions,omitempty"`
	LotDims       string   `json:"lot_dimensions,omitempty"`
	Zoning        string   `json:"zoning,omitempty"`
	LandUse       string   `json:"land_use,omitempty"`

	PermitCount12M *int   `json:"permit_count_12m,omitempty"`
	LastPermitDate string `json:"last_permit_date,omitempty"`
	LastPermit     string `json:"last_permit,omitempty"`

	LastSaleDate  string   `json:"last_sale_date,omitempty"`
	LastSalePrice *float64 `json:"last_sale_price,omitempty"`
	TaxYear       *int     `json:"tax_year,omitempty"`
	MarketValue   *float64 `json:"market_value,omitempty"`
	TaxAmount     *float64 `json:"tax_amount,omitempty"`
}

// RecordWire mirrors the raw upstream row, carrying every historical field
// name variant side by side. Decoding never fails on absent fields.
type RecordWire struct {
	BBL         string   `json:"bbl"`
	Address     string   `json:"address"`
	Borough     string   `json:"borough"`
	BoroughFull string   `json:"borough_full"`
	Zipcode     string   `json:"zipcode"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`

	YearBuiltLegacy *int `json:"yearbuilt"`
	YearBuilt       *int `json:"year_built"`
	NumFloors       *int `json:"numfloors"`
	Floors          *int `json:"floors"`
	Stories         *int `json:"stories"`
	UnitsRes        *int `json:"unitsres"`
	UnitsTotalOld   *int `json:"unitstotal"`
	UnitsTotal      *int `json:"units_total"`

	LotSqft      *float64 `json:"lot_sqft"`
	LotArea      *float64 `json:"lotarea"`
	BldgArea     *float64 `json:"bldgarea"`
	BuildingDims string   `json:"building_dimensions"`
	LotDims      string   `json:"lot_dimensions"`
	Zoning       string   `json:"zoning"`
	ZoneDist1    string   `json:"zonedist1"`
	LandUse      string   `json:"landuse"`

	PermitCount12Mo  *int   `json:"permit_count_12mo"`
	PermitCount12M   *int   `json:"permit_count_12m"`
	PermitsLast12M   *int   `json:"permits_last_12m"`
	LatestPermitDate string `json:"latest_permit_date"`
	LastPermitDate   string `json:"last_permit_date"`
	LatestPermitDesc string `json:"latest_permit_description"`
	LastPermit       string `json:"last_permit"`

	LastSaleDate  string   `json:"last_sale_date"`
	LastSalePrice *float64 `json:"last_sale_price"`
	TaxYear       *int     `json:"tax_year"`
	MarketValue   *float64 `json:"market_value"`
	TaxAmount     *float64 `json:"tax_amount"`
}

// Record resolves field-name variants into the canonical PropertyRecord.
// Precedence per attribute is "more specific / newer name first"; the first
// present value wins.
func (w RecordWire) Record() PropertyRecord {
	rec := PropertyRecord{
		BBL:         w.BBL,
		Address:     w.Address,
		Borough:     NormalizeBorough(w.Borough),
		BoroughFull: w.BoroughFull,
		Zipcode:     w.Zipcode,
		Latitude:    w.Latitude,
		Longitude:   w.Longitude,

		YearBuilt:  preferInt(w.YearBuiltLegacy, w.YearBuilt),
		Floors:     preferInt(w.NumFloors, w.Floors),
		Stories:    preferInt(w.Stories, w.NumFloors),
		UnitsRes:   w.UnitsRes,
		UnitsTotal: preferInt(w.UnitsTotalOld, w.UnitsTotal),

		LotSqft:      preferFloat(w.LotSqft, w.LotArea),
		BldgArea:     w.BldgArea,
		BuildingDims: w.BuildingDims,
		LotDims:      w.LotDims,
		Zoning:       preferString(w.Zoning, w.ZoneDist1),
		LandUse:      w.LandUse,

		PermitCount12M: preferInt(w.PermitCount12Mo, w.PermitCount12M, w.PermitsLast12M),
		LastPermitDate: preferString(w.LatestPermitDate, w.LastPermitDate),
		LastPermit:     preferString(w.LatestPermitDesc, w.LastPermit),

		LastSaleDate:  w.LastSaleDate,
		LastSalePrice: w.LastSalePrice,
		TaxYear:       w.TaxYear,
		MarketValue:   w.MarketValue,
		TaxAmount:     w.TaxAmount,
	}
	if rec.Borough == "" {
		rec.Borough = strings.ToUpper(strings.TrimSpace(w.Borough))
	}
	return rec
}

// Records resolves a page of wire rows.
func Records(wires []RecordWire) []PropertyRecord {
	out := make([]PropertyRecord, 0, len(wires))
	for _, w := range wires {
		out = append(out, w.Record())
	}
	return out
}

func preferInt(candidates ...*int) *int {
	for _, c := range candidates {
		if c != nil {
			return c
		}
	}
	return nil
}

func preferFloat(candidates ...*float64) *float64 {
	for _, c := range candidates {
		if c != nil {
			return c
		}
	}
	return nil
}

func preferString(candidates ...string) string {
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			return c
		}
	}
	return ""
}

// ResultPage is one page of search results together with the authoritative
// server-reported total match count.
type ResultPage struct {
	Total   int              `json:"total"`
	Records []PropertyRecord `json:"records"`
}
