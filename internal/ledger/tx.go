package ledger

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Inscription is one payload to be written onto the ledger: the raw
// bytes plus the MIME type a content gateway should serve them with.
type Inscription struct {
	ContentType string
	Payload     []byte
}

const (
	// InscriptionValue is the value carried by an inscription output.
	// The payload rides along; the output itself only needs to exist.
	InscriptionValue = 1

	// DustLimit is the smallest change value worth creating an output
	// for. Change below this is forfeited to fees.
	DustLimit = 546

	txEnvelopeVersion = 1
)

// TxPlan is a raw transaction ready to broadcast, plus the facts the
// publisher needs that are only implicit in the raw bytes.
type TxPlan struct {
	// Raw is the serialized transaction.
	Raw []byte

	// Fee is the fee the transaction pays.
	Fee int64

	// ChangeValue is the value returned to the funding address, or 0
	// if change fell below the dust limit. The change output, when
	// present, is always vout 1 (the inscription is vout 0).
	ChangeValue int64
}

// BuildInscriptionTx assembles a transaction that spends one output
// and creates an inscription output (vout 0) plus, when economical, a
// change output (vout 1) back to the funding address.
//
// The envelope is deterministic: identical inputs always produce
// identical raw bytes. feeRate is in base units per 1000 envelope
// bytes, with a floor of one unit.
func BuildInscriptionTx(insc Inscription, spend Output, fundingAddress string, feeRate int64) (TxPlan, error) {
	if len(insc.Payload) == 0 {
		return TxPlan{}, fmt.Errorf("build tx: empty payload")
	}
	if spend.Value <= InscriptionValue {
		return TxPlan{}, fmt.Errorf("build tx: output %s value %d cannot fund an inscription", spend.Outpoint(), spend.Value)
	}

	var buf bytes.Buffer
	buf.WriteByte(txEnvelopeVersion)
	writeField(&buf, []byte(spend.Outpoint()))
	writeField(&buf, []byte(fundingAddress))
	writeField(&buf, []byte(insc.ContentType))
	writeField(&buf, insc.Payload)

	size := int64(buf.Len()) + 16 // change field added below, fixed width
	fee := feeRate * size / 1000
	if fee < 1 {
		fee = 1
	}

	change := spend.Value - InscriptionValue - fee
	if change < DustLimit {
		fee += change
		change = 0
	}
	if spend.Value-InscriptionValue-fee < 0 {
		return TxPlan{}, fmt.Errorf("build tx: output %s value %d cannot cover fee %d", spend.Outpoint(), spend.Value, fee)
	}

	var tail [16]byte
	binary.BigEndian.PutUint64(tail[:8], uint64(change))
	binary.BigEndian.PutUint64(tail[8:], uint64(fee))
	buf.Write(tail[:])

	return TxPlan{Raw: buf.Bytes(), Fee: fee, ChangeValue: change}, nil
}

// BuildSplitTx assembles a transaction that spends one output and
// creates count outputs of valuePer each (vouts 0..count-1), plus a
// change output at vout count when economical. Used to pre-split a
// funding output so publish jobs do not contend for one input.
func BuildSplitTx(spend Output, fundingAddress string, count int, valuePer int64, feeRate int64) (TxPlan, error) {
	if count <= 0 {
		return TxPlan{}, fmt.Errorf("build split tx: count must be positive, got %d", count)
	}
	if valuePer < DustLimit {
		return TxPlan{}, fmt.Errorf("build split tx: per-output value %d is below dust", valuePer)
	}

	var buf bytes.Buffer
	buf.WriteByte(txEnvelopeVersion)
	writeField(&buf, []byte("split"))
	writeField(&buf, []byte(spend.Outpoint()))
	writeField(&buf, []byte(fundingAddress))
	var hdr [12]byte
	binary.BigEndian.PutUint32(hdr[:4], uint32(count))
	binary.BigEndian.PutUint64(hdr[4:], uint64(valuePer))
	buf.Write(hdr[:])

	size := int64(buf.Len()) + 16
	fee := feeRate * size / 1000
	if fee < 1 {
		fee = 1
	}

	change := spend.Value - int64(count)*valuePer - fee
	if change < 0 {
		return TxPlan{}, fmt.Errorf("build split tx: output %s value %d cannot fund %d x %d plus fee %d",
			spend.Outpoint(), spend.Value, count, valuePer, fee)
	}
	if change < DustLimit {
		fee += change
		change = 0
	}

	var tail [16]byte
	binary.BigEndian.PutUint64(tail[:8], uint64(change))
	binary.BigEndian.PutUint64(tail[8:], uint64(fee))
	buf.Write(tail[:])

	return TxPlan{Raw: buf.Bytes(), Fee: fee, ChangeValue: change}, nil
}

// ExtractInscription recovers the content type and payload from a raw
// transaction produced by BuildInscriptionTx. Split transactions carry
// no inscription.
func ExtractInscription(raw []byte) (Inscription, error) {
	r := bytes.NewReader(raw)
	version, err := r.ReadByte()
	if err != nil || version != txEnvelopeVersion {
		return Inscription{}, fmt.Errorf("malformed transaction envelope")
	}

	first, err := readField(r)
	if err != nil {
		return Inscription{}, err
	}
	if string(first) == "split" {
		return Inscription{}, fmt.Errorf("transaction carries no inscription")
	}
	if _, err := readField(r); err != nil { // funding address
		return Inscription{}, err
	}
	ct, err := readField(r)
	if err != nil {
		return Inscription{}, err
	}
	payload, err := readField(r)
	if err != nil {
		return Inscription{}, err
	}
	return Inscription{ContentType: string(ct), Payload: payload}, nil
}

func writeField(buf *bytes.Buffer, data []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(data)))
	buf.Write(n[:])
	buf.Write(data)
}
