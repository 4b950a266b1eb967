// Package schema declares the claim field layout per credential type.
//
// A grant's field mask is a bit-set over the fields declared here; bit i of
// the mask corresponds to Fields[i]. No grant may set a bit at or beyond the
// schema width of its credential's type.
package schema

// CredentialType enumerates the credential kinds the service can issue.
type CredentialType string

const (
	TypeNationalID CredentialType = "national_id"
	TypeTaxID      CredentialType = "tax_id"
	TypeLicense    CredentialType = "license"
)

// BitIndex positions each credential type occupies in an identity's
// verification bitmap. Distinct from field bits: this is one bit per type.
var bitIndex = map[CredentialType]uint8{
	TypeNationalID: 0,
	TypeTaxID:      1,
	TypeLicense:    2,
}

// Schema is the ordered claim field list for one credential type.
type Schema struct {
	Type   CredentialType
	Fields []string
}

var schemas = map[CredentialType]Schema{
	TypeNationalID: {
		Type:   TypeNationalID,
		Fields: []string{"name", "dob", "gender", "address", "id_number", "photo_hash"},
	},
	TypeTaxID: {
		Type:   TypeTaxID,
		Fields: []string{"name", "dob", "id_number", "father_name"},
	},
	TypeLicense: {
		Type:   TypeLicense,
		Fields: []string{"name", "dob", "id_number", "valid_until", "vehicle_classes"},
	},
}

// ForType returns the schema for a credential type.
func ForType(t CredentialType) (Schema, bool) {
	s, ok := schemas[t]
	return s, ok
}

// Known reports whether t is a declared credential type.
func Known(t CredentialType) bool {
	_, ok := schemas[t]
	return ok
}

// VerificationBit returns the identity-bitmap bit for a credential type.
func VerificationBit(t CredentialType) (uint8, bool) {
	b, ok := bitIndex[t]
	return b, ok
}

// Width returns the number of declared fields.
func (s Schema) Width() int { return len(s.Fields) }

// FullMask returns the mask with every declared field bit set.
func (s Schema) FullMask() uint64 {
	return (uint64(1) << uint(len(s.Fields))) - 1
}

// MaskValid reports whether mask only uses declared field bits.
func (s Schema) MaskValid(mask uint64) bool {
	return mask&^s.FullMask() == 0
}

// FieldBit returns the bit position of a named field.
func (s Schema) FieldBit(field string) (uint8, bool) {
	for i, f := range s.Fields {
		if f == field {
			return uint8(i), true
		}
	}
	return 0, false
}
