package record

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/kailas-cloud/profdex/internal/db"
	"github.com/kailas-cloud/profdex/internal/domain"
	domrec "github.com/kailas-cloud/profdex/internal/domain/record"
)

// Hash field names of a stored profile record.
const (
	FieldNamespace  = db.NamespaceField
	FieldRecordID   = "record_id"
	FieldName       = "name"
	FieldHeadline   = "headline"
	FieldExperience = "experience"
	FieldSkills     = "skills"
	FieldLocation   = "location"
	FieldContent    = "__content"
	FieldProfile    = "__profile"
	FieldVector     = db.VectorField
)

// ReturnFields are the hash fields needed to rebuild a record, without the vector blob.
var ReturnFields = []string{
	FieldNamespace, FieldRecordID,
	FieldName, FieldHeadline, FieldExperience, FieldSkills, FieldLocation,
	FieldProfile,
}

var reserved = map[string]bool{
	FieldNamespace: true, FieldRecordID: true,
	FieldName: true, FieldHeadline: true, FieldExperience: true, FieldSkills: true, FieldLocation: true,
	FieldContent: true, FieldProfile: true, FieldVector: true,
}

// Valkey key patterns: {prefix}rec:{namespace}:{record_id}

// KeyPrefix returns the prefix shared by all record hashes, used as the FT index PREFIX.
func KeyPrefix(prefix string) string {
	return prefix + "rec:"
}

// Key returns the hash key of one record.
func Key(prefix string, ns domain.Namespace, id string) string {
	return KeyPrefix(prefix) + ns.String() + ":" + id
}

// NamespacePattern returns the SCAN pattern matching every record of a namespace.
// Namespace names cannot contain ':' or glob characters, so patterns never overlap.
func NamespacePattern(prefix string, ns domain.Namespace) string {
	return KeyPrefix(prefix) + ns.String() + ":*"
}

// ToHash converts a record, its canonical text and embedding into hash fields.
// Filterable attributes are flattened alongside so FT TAG/NUMERIC fields can index them;
// attributes shadowing reserved fields are kept only in the profile JSON.
func ToHash(r domrec.Record, content string, vector []float32) (map[string]string, error) {
	profile, err := json.Marshal(r.Attributes())
	if err != nil {
		return nil, fmt.Errorf("marshal profile %s: %w", r.ID(), err)
	}

	f := r.Fields()
	m := map[string]string{
		FieldNamespace:  r.Namespace().String(),
		FieldRecordID:   r.ID(),
		FieldName:       f.Name,
		FieldHeadline:   f.Headline,
		FieldExperience: f.Experience,
		FieldSkills:     f.Skills,
		FieldLocation:   f.Location,
		FieldContent:    content,
		FieldProfile:    string(profile),
	}
	if len(vector) > 0 {
		m[FieldVector] = VectorToBlob(vector)
	}

	for k, v := range r.Tags() {
		if !reserved[k] {
			m[k] = v
		}
	}
	for k, v := range r.Numerics() {
		if !reserved[k] {
			m[k] = strconv.FormatFloat(v, 'g', -1, 64)
		}
	}
	return m, nil
}

// FromHash hydrates a record from HGETALL or FT.SEARCH fields.
func FromHash(m map[string]string) (domrec.Record, error) {
	ns, err := domain.NewNamespace(m[FieldNamespace])
	if err != nil {
		return domrec.Record{}, fmt.Errorf("stored record: %w", err)
	}

	attrs := map[string]any{}
	if raw := m[FieldProfile]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
			return domrec.Record{}, fmt.Errorf("unmarshal profile %s: %w", m[FieldRecordID], err)
		}
	}

	return domrec.New(m[FieldRecordID], ns, domrec.Fields{
		Name:       m[FieldName],
		Headline:   m[FieldHeadline],
		Experience: m[FieldExperience],
		Skills:     m[FieldSkills],
		Location:   m[FieldLocation],
	}, attrs)
}

// VectorToBlob encodes a vector as the little-endian FLOAT32 blob FT indexes expect.
func VectorToBlob(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// BlobToVector decodes a FLOAT32 blob.
func BlobToVector(s string) ([]float32, error) {
	if len(s)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob: len=%d (not multiple of 4)", len(s))
	}
	vec := make([]float32, len(s)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32([]byte(s[i*4 : i*4+4])))
	}
	return vec, nil
}
