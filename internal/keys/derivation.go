package keys

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"golang.org/x/crypto/sha3"

	"github.com/quillwallet/quill/internal/chain"
	qerr "github.com/quillwallet/quill/pkg/errors"
)

// Scheme selects the derivation scheme for a UTXO account.
type Scheme int

// Derivation schemes.
const (
	// Legacy derives P2PKH addresses under purpose 44'.
	Legacy Scheme = iota
	// Segwit derives P2WPKH (bech32) addresses under purpose 84'.
	Segwit
)

// Purpose returns the BIP32 purpose constant for the scheme.
func (s Scheme) Purpose() uint32 {
	if s == Segwit {
		return 84
	}
	return 44
}

// String returns the scheme name.
func (s Scheme) String() string {
	if s == Segwit {
		return "segwit"
	}
	return "legacy"
}

// Branch indices within an account.
const (
	// ReceiveBranch is the external chain (.../0/i).
	ReceiveBranch uint32 = 0
	// ChangeBranch is the internal chain (.../1/i).
	ChangeBranch uint32 = 1
)

// Component is one step of a derivation path: a child index, hardened
// or not.
type Component struct {
	Index    uint32
	Hardened bool
}

// Normal returns a non-hardened path component.
func Normal(index uint32) Component {
	return Component{Index: index}
}

// Hardened returns a hardened path component.
func Hardened(index uint32) Component {
	return Component{Index: index, Hardened: true}
}

// String formats the component, appending ' for hardened indices.
func (c Component) String() string {
	if c.Hardened {
		return strconv.FormatUint(uint64(c.Index), 10) + "'"
	}
	return strconv.FormatUint(uint64(c.Index), 10)
}

// Path is an ordered sequence of derivation components, rooted at the
// master key.
type Path []Component

// String formats the path as m/44'/0'/0'/0/0.
func (p Path) String() string {
	parts := make([]string, 0, len(p)+1)
	parts = append(parts, "m")
	for _, c := range p {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, "/")
}

// AccountPath returns the hardened account-level path
// m/purpose'/coin_type'/account' for a chain and scheme.
func AccountPath(scheme Scheme, chainID chain.ID, account uint32) Path {
	return Path{
		Hardened(scheme.Purpose()),
		Hardened(chainID.CoinType()),
		Hardened(account),
	}
}

// ParsePath parses a path string like m/44'/0'/0'/0/0. Both ' and h mark
// hardened components.
func ParsePath(s string) (Path, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) == 0 || parts[0] != "m" {
		return nil, qerr.WithDetails(qerr.ErrInvalidPath, map[string]string{"path": s})
	}

	path := make(Path, 0, len(parts)-1)
	for _, part := range parts[1:] {
		hardened := false
		if strings.HasSuffix(part, "'") || strings.HasSuffix(part, "h") {
			hardened = true
			part = part[:len(part)-1]
		}
		index, err := strconv.ParseUint(part, 10, 32)
		if err != nil || index >= hdkeychain.HardenedKeyStart {
			return nil, qerr.WithDetails(qerr.ErrInvalidPath, map[string]string{"path": s})
		}
		path = append(path, Component{Index: uint32(index), Hardened: hardened})
	}
	return path, nil
}

// ValidateBIP44 checks that hardened components sit exactly at the
// purpose/coin/account levels and nowhere below.
func ValidateBIP44(p Path) error {
	if len(p) < 3 {
		return qerr.WithDetails(qerr.ErrInvalidPath, map[string]string{
			"path":   p.String(),
			"reason": "purpose, coin type, and account levels are required",
		})
	}
	for i, c := range p {
		wantHardened := i < 3
		if c.Hardened != wantHardened {
			return qerr.WithDetails(qerr.ErrInvalidPath, map[string]string{
				"path":   p.String(),
				"reason": fmt.Sprintf("component %d must have hardened=%t", i, wantHardened),
			})
		}
	}
	return nil
}

// HDWallet owns a master extended key created once from a mnemonic and
// seed. It is immutable after creation; derivation is a pure function of
// path.
type HDWallet struct {
	master *hdkeychain.ExtendedKey
}

// NewHDWallet derives the master key from a BIP39 mnemonic and optional
// passphrase.
func NewHDWallet(mnemonic, passphrase string) (*HDWallet, error) {
	seed, err := MnemonicToSeed(mnemonic, passphrase)
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(seed)
	return NewHDWalletFromSeed(seed)
}

// NewHDWalletFromSeed derives the master key directly from a BIP39 seed.
func NewHDWalletFromSeed(seed []byte) (*HDWallet, error) {
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, qerr.Wrap(err, "creating master key")
	}
	return &HDWallet{master: master}, nil
}

// Derive walks the path from the master key.
func (w *HDWallet) Derive(p Path) (*hdkeychain.ExtendedKey, error) {
	key := w.master
	for _, c := range p {
		index := c.Index
		if c.Hardened {
			index += hdkeychain.HardenedKeyStart
		}
		child, err := key.Derive(index)
		if err != nil {
			return nil, qerr.Wrap(err, "deriving %s", p.String())
		}
		key = child
	}
	return key, nil
}

// Account derives the account-level keys for a chain at the given index
// and scheme, returning a Derivation with cached receive and change
// branch keys.
func (w *HDWallet) Account(chainID chain.ID, account uint32, scheme Scheme) (*Derivation, error) {
	path := AccountPath(scheme, chainID, account)
	accountKey, err := w.Derive(path)
	if err != nil {
		return nil, err
	}

	xpub, err := accountKey.Neuter()
	if err != nil {
		return nil, qerr.Wrap(err, "neutering account key")
	}

	d := &Derivation{
		Chain:         chainID,
		Scheme:        scheme,
		Purpose:       scheme.Purpose(),
		AccountIndex:  account,
		XPriv:         accountKey.String(),
		XPub:          xpub.String(),
		AddressLabels: make(map[uint32]string),
		accountKey:    accountKey,
	}
	if err := d.cacheBranches(); err != nil {
		return nil, err
	}
	return d, nil
}

// Account owns the derivations of one chain account. UTXO chains carry
// both schemes; account-based chains only legacy (purpose 44').
type Account struct {
	Chain       chain.ID
	Index       uint32
	Derivations []*Derivation
}

// NewAccount derives all applicable scheme derivations for a chain
// account.
func (w *HDWallet) NewAccount(chainID chain.ID, index uint32) (*Account, error) {
	schemes := []Scheme{Legacy}
	if chainID.Family() == chain.FamilyUTXO {
		schemes = append(schemes, Segwit)
	}

	acct := &Account{Chain: chainID, Index: index}
	for _, s := range schemes {
		d, err := w.Account(chainID, index, s)
		if err != nil {
			return nil, err
		}
		acct.Derivations = append(acct.Derivations, d)
	}
	return acct, nil
}

// Derivation holds the account-level extended keys for one scheme, with
// precomputed receive and change branch keys. Created once; immutable.
type Derivation struct {
	Chain        chain.ID
	Scheme       Scheme
	Purpose      uint32
	AccountIndex uint32

	// XPriv is empty for watch-only derivations created from an xpub.
	XPriv string
	XPub  string

	// AddressLabels maps receive indices to caller-assigned labels.
	AddressLabels map[uint32]string

	accountKey *hdkeychain.ExtendedKey
	receive    *hdkeychain.ExtendedKey
	change     *hdkeychain.ExtendedKey
}

// DerivationFromXPub creates a watch-only derivation from a serialized
// account xpub. Receive and change addresses derive without the private
// key; signing operations fail with a typed error.
func DerivationFromXPub(xpub string, chainID chain.ID, account uint32, scheme Scheme) (*Derivation, error) {
	key, err := hdkeychain.NewKeyFromString(xpub)
	if err != nil {
		return nil, qerr.Wrap(err, "parsing xpub")
	}
	if key.IsPrivate() {
		key, err = key.Neuter()
		if err != nil {
			return nil, qerr.Wrap(err, "neutering key")
		}
	}

	d := &Derivation{
		Chain:         chainID,
		Scheme:        scheme,
		Purpose:       scheme.Purpose(),
		AccountIndex:  account,
		XPub:          key.String(),
		AddressLabels: make(map[uint32]string),
		accountKey:    key,
	}
	if err := d.cacheBranches(); err != nil {
		return nil, err
	}
	return d, nil
}

// cacheBranches precomputes the receive (0) and change (1) branch keys.
// Branch derivation is non-hardened so it works for both private and
// watch-only account keys.
func (d *Derivation) cacheBranches() error {
	receive, err := d.accountKey.Derive(ReceiveBranch)
	if err != nil {
		return qerr.Wrap(err, "deriving receive branch")
	}
	change, err := d.accountKey.Derive(ChangeBranch)
	if err != nil {
		return qerr.Wrap(err, "deriving change branch")
	}
	d.receive = receive
	d.change = change
	return nil
}

// IsWatchOnly reports whether the derivation lacks private key material.
func (d *Derivation) IsWatchOnly() bool {
	return !d.accountKey.IsPrivate()
}

// branchKey returns the cached extended key for a branch.
func (d *Derivation) branchKey(branch uint32) (*hdkeychain.ExtendedKey, error) {
	switch branch {
	case ReceiveBranch:
		return d.receive, nil
	case ChangeBranch:
		return d.change, nil
	default:
		return nil, qerr.WithDetails(qerr.ErrInvalidPath, map[string]string{
			"reason": "branch must be 0 (receive) or 1 (change)",
		})
	}
}

// ChildPublicKey derives the public key at branch/index. Never requires
// the private key.
func (d *Derivation) ChildPublicKey(branch, index uint32) (*btcec.PublicKey, error) {
	key, err := d.branchKey(branch)
	if err != nil {
		return nil, err
	}
	child, err := key.Derive(index)
	if err != nil {
		return nil, qerr.Wrap(err, "deriving child %d/%d", branch, index)
	}
	return child.ECPubKey()
}

// ChildPrivateKey derives the private key at branch/index for signing.
// The caller must zero the key material after use.
func (d *Derivation) ChildPrivateKey(branch, index uint32) (*btcec.PrivateKey, error) {
	if d.IsWatchOnly() {
		return nil, qerr.WithDetails(qerr.ErrHardenedFromXPub, map[string]string{
			"reason": "derivation is watch-only",
		})
	}
	key, err := d.branchKey(branch)
	if err != nil {
		return nil, err
	}
	child, err := key.Derive(index)
	if err != nil {
		return nil, qerr.Wrap(err, "deriving child %d/%d", branch, index)
	}
	return child.ECPrivKey()
}

// ReceiveAddress returns the chain-formatted address at receive index i.
func (d *Derivation) ReceiveAddress(index uint32) (string, error) {
	return d.addressAt(ReceiveBranch, index)
}

// ChangeAddress returns the chain-formatted address at change index i.
func (d *Derivation) ChangeAddress(index uint32) (string, error) {
	return d.addressAt(ChangeBranch, index)
}

// Path returns the full derivation path of an address.
func (d *Derivation) Path(branch, index uint32) Path {
	return append(AccountPath(d.Scheme, d.Chain, d.AccountIndex),
		Normal(branch), Normal(index))
}

func (d *Derivation) addressAt(branch, index uint32) (string, error) {
	pub, err := d.ChildPublicKey(branch, index)
	if err != nil {
		return "", err
	}

	if d.Chain.Family() == chain.FamilyAccount {
		return EthereumAddress(pub), nil
	}

	pubKeyHash := btcutil.Hash160(pub.SerializeCompressed())
	if d.Scheme == Segwit {
		addr, err := btcutil.NewAddressWitnessPubKeyHash(pubKeyHash, &chaincfg.MainNetParams)
		if err != nil {
			return "", qerr.Wrap(err, "encoding witness address")
		}
		return addr.EncodeAddress(), nil
	}

	addr, err := btcutil.NewAddressPubKeyHash(pubKeyHash, &chaincfg.MainNetParams)
	if err != nil {
		return "", qerr.Wrap(err, "encoding address")
	}
	return addr.EncodeAddress(), nil
}

// EthereumAddress derives the EIP-55 checksummed address for a public
// key: keccak256(uncompressed pubkey without prefix), last 20 bytes.
func EthereumAddress(pub *btcec.PublicKey) string {
	uncompressed := pub.SerializeUncompressed()

	hash := sha3.NewLegacyKeccak256()
	hash.Write(uncompressed[1:]) // Skip 0x04 prefix
	addrBytes := hash.Sum(nil)[12:]

	return toChecksumAddress(addrBytes)
}

// toChecksumAddress converts a 20-byte address to an EIP-55 checksummed
// hex string.
func toChecksumAddress(addr []byte) string {
	addrHex := hex.EncodeToString(addr)

	hash := sha3.NewLegacyKeccak256()
	hash.Write([]byte(addrHex))
	hashBytes := hash.Sum(nil)

	result := make([]byte, len(addrHex))
	for i := 0; i < len(addrHex); i++ {
		result[i] = checksumChar(addrHex[i], hashBytes[i/2], i%2 == 1)
	}
	return "0x" + string(result)
}

// checksumChar applies EIP-55 casing to a single hex character.
func checksumChar(c, hashByte byte, isOddPosition bool) byte {
	if c >= '0' && c <= '9' {
		return c
	}

	nibble := hashByte >> 4
	if isOddPosition {
		nibble = hashByte & 0x0F
	}

	if nibble >= 8 {
		return c - 32 // Uppercase
	}
	return c
}
