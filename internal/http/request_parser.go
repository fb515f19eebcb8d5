// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// JSON bodies, bearer tokens, period query parameters and record inputs.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"estoque/internal/core"
)

const maxBodyBytes = 1 << 20

var (
	errEmptyBody   = errors.New("request body is empty")
	errInvalidDate = errors.New("invalid date, expected YYYY-MM-DD or RFC 3339")
)

// ParsePeriodParam reads the "period" query parameter. A missing value means
// all time.
func ParsePeriodParam(query url.Values) (core.Period, error) {
	p, err := core.ParsePeriod(query.Get("period"))
	if err != nil {
		ve := &core.ValidationError{}
		ve.Add("period", err)
		return core.Period{}, ve
	}
	return p, nil
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// DecodeJSON decodes a size-limited JSON body into v, rejecting unknown fields.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// recordRequest is the JSON body of record create and update requests.
// Omitted fields stay nil.
type recordRequest struct {
	Name              *string     `json:"name"`
	QuantityPurchased *int64      `json:"quantityPurchased"`
	PurchasePrice     *core.Money `json:"purchasePrice"`
	SalePrice         *core.Money `json:"salePrice"`
	QuantitySold      *int64      `json:"quantitySold"`
	LastSaleDate      *string     `json:"lastSaleDate"`
}

// toInput converts the request into a record input. Plain dates are taken
// as midnight in loc.
func (req recordRequest) toInput(loc *time.Location) (core.RecordInput, error) {
	in := core.RecordInput{
		QuantityPurchased: req.QuantityPurchased,
		PurchasePrice:     req.PurchasePrice,
		SalePrice:         req.SalePrice,
		QuantitySold:      req.QuantitySold,
	}
	if req.Name != nil {
		name := sanitizeInput(*req.Name)
		in.Name = &name
	}
	if req.LastSaleDate != nil && strings.TrimSpace(*req.LastSaleDate) != "" {
		d, err := parseSaleDate(*req.LastSaleDate, loc)
		if err != nil {
			ve := &core.ValidationError{}
			ve.Add("lastSaleDate", err)
			return core.RecordInput{}, ve
		}
		in.LastSaleDate = &d
	}
	return in, nil
}

// parseSaleDate accepts the date input form (YYYY-MM-DD) and RFC 3339.
func parseSaleDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, errInvalidDate
}

// authRequest is the JSON body of sign-up and sign-in requests.
type authRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
}

// sanitizeInput drops control characters, turns line breaks into spaces and
// trims whitespace. Names stay on one line in exports.
func sanitizeInput(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r':
			return ' '
		case r < 32 && r != '\t':
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
