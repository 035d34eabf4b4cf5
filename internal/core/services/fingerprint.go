package services

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
)

// fingerprintEncMode encodes with Core Deterministic Encoding (RFC 8949
// §4.2) so the same logical document always produces identical bytes.
var fingerprintEncMode cbor.EncMode

// fingerprintKey is the BLAKE3 keyed-hash key: the ASCII domain name,
// zero-padded to 32 bytes. Changing it invalidates every cached fingerprint.
var fingerprintKey = [32]byte{
	'j', 'i', 'r', 'a', '-', 'q', '-', 's', 'y', 'n', 'c', '.',
	'f', 'i', 'n', 'g', 'e', 'r', 'p', 'r', 'i', 'n', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

func init() {
	var err error
	fingerprintEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("services: CBOR encoder initialization failed: " + err.Error())
	}
}

// fingerprintInput is the hashed projection of a document. Volatile fields
// (source timestamps, execution ids) are not part of it.
type fingerprintInput struct {
	Title      string                 `cbor:"title"`
	Content    string                 `cbor:"content"`
	Attributes []fingerprintAttribute `cbor:"attributes"`
	ACL        []fingerprintPrincipal `cbor:"acl"`
	Relation   string                 `cbor:"relation"`
}

type fingerprintAttribute struct {
	Name   string   `cbor:"n"`
	Type   string   `cbor:"t"`
	String string   `cbor:"s,omitempty"`
	List   []string `cbor:"l,omitempty"`
	Long   int64    `cbor:"i,omitempty"`
	Date   string   `cbor:"d,omitempty"`
}

type fingerprintPrincipal struct {
	Kind string `cbor:"k"`
	ID   string `cbor:"id"`
}

// Fingerprint returns a stable hex digest over the document's title,
// content, attributes and ACL. Two documents with equal fingerprints
// would produce identical index entries.
func Fingerprint(doc domain.Document) (string, error) {
	in := fingerprintInput{
		Title:    doc.Title,
		Content:  doc.Content,
		Relation: string(doc.ACL.MemberRelation),
	}
	for _, a := range doc.Attributes {
		fa := fingerprintAttribute{Name: a.Name, Type: string(a.Value.Type)}
		switch a.Value.Type {
		case domain.AttrString:
			fa.String = a.Value.String
		case domain.AttrStringList:
			fa.List = a.Value.StringList
		case domain.AttrLong:
			fa.Long = a.Value.Long
		case domain.AttrDate:
			fa.Date = a.Value.Date.UTC().Format(time.RFC3339Nano)
		}
		in.Attributes = append(in.Attributes, fa)
	}
	for _, p := range doc.ACL.Principals {
		in.ACL = append(in.ACL, fingerprintPrincipal{Kind: string(p.Kind), ID: p.ID})
	}

	data, err := fingerprintEncMode.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("encode fingerprint input: %w", err)
	}

	hasher, err := blake3.NewKeyed(fingerprintKey[:])
	if err != nil {
		return "", fmt.Errorf("init fingerprint hash: %w", err)
	}
	_, _ = hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
