// Package validation checks inbound QueryRequest and DataRequest
// values before they reach the router or fan-out coordinator, folding
// every violation into the errors package's invalid-argument
// taxonomy.
package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/basecamp/federatedkv/internal/errors"
	"github.com/basecamp/federatedkv/internal/model"
)

const (
	MaxStringParamSize = 1 << 20 // 1 MiB ceiling on any single string parameter
	MaxClientIDSize    = 256
	MaxQueryIDSize     = 256
)

// Validator validates query-domain requests.
type Validator struct {
	maxStringParamSize int
}

// NewValidator creates a Validator with the default size limits.
func NewValidator() *Validator {
	return &Validator{maxStringParamSize: MaxStringParamSize}
}

// ValidateQueryRequest checks the client-facing request accepted by QueryData.
func (v *Validator) ValidateQueryRequest(req model.QueryRequest) error {
	if err := v.validateQueryID(req.QueryID); err != nil {
		return err
	}
	if err := v.validateClientID(req.ClientID); err != nil {
		return err
	}

	switch req.Type {
	case model.QueryExact:
		// key is an arbitrary int32, nothing further to check
	case model.QueryRange:
		if req.RangeStart > req.RangeEnd {
			return errors.InvalidArgument(
				fmt.Sprintf("range_start %d is greater than range_end %d", req.RangeStart, req.RangeEnd), nil)
		}
	case model.QueryAll:
		// no parameters to validate
	case model.QueryWrite:
		if err := v.validateStringParam(req.StringParam); err != nil {
			return err
		}
	default:
		return errors.InvalidArgument(fmt.Sprintf("unknown query type %q", req.Type), nil)
	}

	return nil
}

// ValidateDataRequest checks the inter-node request carried by GatherData,
// on top of the embedded QueryRequest checks.
func (v *Validator) ValidateDataRequest(req model.DataRequest) error {
	if err := v.ValidateQueryRequest(req.QueryRequest); err != nil {
		return err
	}
	if req.RequesterID == "" {
		return errors.InvalidArgument("requester_id cannot be empty", nil)
	}
	if req.HopCount < 0 {
		return errors.InvalidArgument(fmt.Sprintf("hop_count cannot be negative, got %d", req.HopCount), nil)
	}
	if req.MaxHops < 0 {
		return errors.InvalidArgument(fmt.Sprintf("max_hops cannot be negative, got %d", req.MaxHops), nil)
	}
	if req.HopCount > req.MaxHops {
		return errors.InvalidArgument(
			fmt.Sprintf("hop_count %d exceeds max_hops %d", req.HopCount, req.MaxHops), nil)
	}
	return nil
}

func (v *Validator) validateQueryID(queryID string) error {
	if queryID == "" {
		return errors.InvalidArgument("query_id cannot be empty", nil)
	}
	if len(queryID) > MaxQueryIDSize {
		return errors.InvalidArgument(
			fmt.Sprintf("query_id exceeds maximum size of %d bytes", MaxQueryIDSize), nil)
	}
	if containsNullByte(queryID) {
		return errors.InvalidArgument("query_id cannot contain null bytes or control characters", nil)
	}
	return nil
}

func (v *Validator) validateClientID(clientID string) error {
	if len(clientID) > MaxClientIDSize {
		return errors.InvalidArgument(
			fmt.Sprintf("client_id exceeds maximum size of %d bytes", MaxClientIDSize), nil)
	}
	if containsNullByte(clientID) {
		return errors.InvalidArgument("client_id cannot contain null bytes or control characters", nil)
	}
	return nil
}

func (v *Validator) validateStringParam(s string) error {
	if len(s) > v.maxStringParamSize {
		return errors.InvalidArgument(
			fmt.Sprintf("string_param exceeds maximum size of %d bytes", v.maxStringParamSize), nil)
	}
	if containsNullByte(s) {
		return errors.InvalidArgument("string_param cannot contain null bytes or control characters", nil)
	}
	return nil
}

// containsNullByte reports whether s contains a NUL byte or any other
// control character except tab and newline.
func containsNullByte(s string) bool {
	if strings.Contains(s, "\x00") {
		return true
	}
	for _, r := range s {
		if unicode.IsControl(r) && r != '\t' && r != '\n' {
			return true
		}
	}
	return false
}
