package utxo

import (
	"bytes"
	"context"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/quillwallet/quill/internal/chain"
	qerr "github.com/quillwallet/quill/pkg/errors"
)

// rbfSequence opts every input into replace-by-fee.
const rbfSequence = 0xfffffffd

// KeySource resolves the private key that controls an address. The
// caller retains ownership of returned keys; Sign zeroes them after use.
type KeySource interface {
	PrivateKey(address string) (*btcec.PrivateKey, error)
}

// SignedTransaction is a fully signed, serialized transaction ready for
// broadcast. TxID is computed locally from the transaction itself.
type SignedTransaction struct {
	Encoded []byte
	TxID    string
}

// Broadcaster submits a raw transaction to the network and reports the
// resulting transaction id.
type Broadcaster interface {
	Broadcast(ctx context.Context, encoded []byte) (string, error)
}

// Sign builds and signs the wire transaction for a candidate. Inputs are
// signed per-address: P2PKH inputs get a signature script, P2WPKH inputs
// get witness data. Sweep candidates send SweepAmount with no change
// output.
func Sign(candidate *Candidate, keys KeySource, params *chaincfg.Params) (*SignedTransaction, error) {
	if len(candidate.Inputs) == 0 {
		return nil, qerr.ErrNoUTXOs
	}
	amount := candidate.Amount()
	if amount == 0 {
		return nil, qerr.WithDetails(qerr.ErrInvalidAmount, map[string]string{
			"reason": "candidate sends zero value",
		})
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	prevOuts := txscript.NewMultiPrevOutFetcher(nil)

	for _, u := range candidate.Inputs {
		prevHash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, qerr.Wrap(err, "parsing input txid")
		}
		outpoint := wire.NewOutPoint(prevHash, u.Vout)

		txIn := wire.NewTxIn(outpoint, nil, nil)
		txIn.Sequence = rbfSequence
		tx.AddTxIn(txIn)

		pkScript, err := inputScript(u, params)
		if err != nil {
			return nil, err
		}
		prevOuts.AddPrevOut(*outpoint, wire.NewTxOut(int64(u.Amount), pkScript))
	}

	if err := addOutput(tx, candidate.Proposal.To, amount, params); err != nil {
		return nil, err
	}
	if candidate.Change > 0 {
		if err := addOutput(tx, candidate.Proposal.ChangeTo, candidate.Change, params); err != nil {
			return nil, err
		}
	}

	sigHashes := txscript.NewTxSigHashes(tx, prevOuts)
	for i, u := range candidate.Inputs {
		if err := signInput(tx, i, u, keys, sigHashes, params); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, qerr.Wrap(err, "serializing transaction")
	}
	return &SignedTransaction{
		Encoded: buf.Bytes(),
		TxID:    tx.TxHash().String(),
	}, nil
}

// Publish broadcasts a signed transaction and returns its transaction
// id. The locally computed id is authoritative; an empty response from
// the broadcaster is tolerated.
func Publish(ctx context.Context, b Broadcaster, signed *SignedTransaction) (string, error) {
	if _, err := b.Broadcast(ctx, signed.Encoded); err != nil {
		return "", qerr.Wrap(err, "broadcasting transaction")
	}
	return signed.TxID, nil
}

func addOutput(tx *wire.MsgTx, address string, amount uint64, params *chaincfg.Params) error {
	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return qerr.WithDetails(qerr.ErrInvalidAddress, map[string]string{
			"address": address,
		})
	}
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return qerr.Wrap(err, "building output script")
	}
	tx.AddTxOut(wire.NewTxOut(int64(amount), pkScript))
	return nil
}

// inputScript returns the previous output script for a UTXO, decoding
// the stored script or rebuilding it from the owning address.
func inputScript(u chain.UTXO, params *chaincfg.Params) ([]byte, error) {
	if u.ScriptPubKey != "" {
		script, err := hex.DecodeString(u.ScriptPubKey)
		if err != nil {
			return nil, qerr.Wrap(err, "decoding input script")
		}
		return script, nil
	}
	addr, err := btcutil.DecodeAddress(u.Address, params)
	if err != nil {
		return nil, qerr.WithDetails(qerr.ErrInvalidAddress, map[string]string{
			"address": u.Address,
		})
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, qerr.Wrap(err, "building input script")
	}
	return script, nil
}

func signInput(tx *wire.MsgTx, idx int, u chain.UTXO, keys KeySource, sigHashes *txscript.TxSigHashes, params *chaincfg.Params) error {
	priv, err := keys.PrivateKey(u.Address)
	if err != nil {
		return qerr.Wrap(err, "resolving signing key")
	}
	defer priv.Zero()

	pkScript, err := inputScript(u, params)
	if err != nil {
		return err
	}

	addr, err := btcutil.DecodeAddress(u.Address, params)
	if err != nil {
		return qerr.WithDetails(qerr.ErrInvalidAddress, map[string]string{
			"address": u.Address,
		})
	}

	switch addr.(type) {
	case *btcutil.AddressWitnessPubKeyHash:
		witness, err := txscript.WitnessSignature(tx, sigHashes, idx, int64(u.Amount), pkScript, txscript.SigHashAll, priv, true)
		if err != nil {
			return qerr.Wrap(err, "signing segwit input")
		}
		tx.TxIn[idx].Witness = witness
	case *btcutil.AddressPubKeyHash:
		sigScript, err := txscript.SignatureScript(tx, idx, pkScript, txscript.SigHashAll, priv, true)
		if err != nil {
			return qerr.Wrap(err, "signing legacy input")
		}
		tx.TxIn[idx].SignatureScript = sigScript
	default:
		return qerr.WithDetails(qerr.ErrInvalidAddress, map[string]string{
			"address": u.Address,
			"reason":  "unsupported address type for signing",
		})
	}
	return nil
}
