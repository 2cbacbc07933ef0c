package proof

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pidgate/internal/commitment"
	"pidgate/internal/did"
	"pidgate/internal/merkle"
	"pidgate/internal/pid"
	"pidgate/internal/proof/metrics"
	"pidgate/internal/registry"
	"pidgate/internal/revocation"
	"pidgate/pkg/domain"
	"pidgate/pkg/platform/sentinel"
)

// RootAuthority signs ad hoc roots and decides whether presented roots are
// still accepted.
type RootAuthority interface {
	CheckRoot(root registry.SignedRoot) error
	SignEphemeral(scope string, tree *merkle.Tree) registry.SignedRoot
}

// RevocationChecker answers from an authenticated revocation list. Errors
// mean the list could not be trusted.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, pid string) (bool, error)
	IsLeafRevoked(ctx context.Context, leaf merkle.Hash) (bool, error)
}

// RegistryProver returns inclusion paths from a registry.
type RegistryProver interface {
	Prove(pid string) (merkle.Proof, registry.SignedRoot, error)
}

// MemberDirectory reports which PIDs are registered. Ad hoc sets may only
// name registered PIDs.
type MemberDirectory interface {
	Leaf(pid string) (merkle.Hash, bool)
}

// OwnerResolver returns the DID a PID was registered for.
type OwnerResolver interface {
	OwnerOf(ctx context.Context, pid string) (string, error)
}

// CircuitID names the circuit a kind is proven under.
func CircuitID(kind Kind) string {
	return "pidgate/" + string(kind) + "/v1"
}

// Engine generates and verifies proofs. It holds no mutable state; every
// method is safe for concurrent use.
type Engine struct {
	codec       *pid.Codec
	scheme      commitment.Scheme
	backend     Backend
	roots       RootAuthority
	revocations RevocationChecker
	directory   MemberDirectory
	owners      OwnerResolver
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	now         func() time.Time
}

type Option func(*Engine)

func WithCodec(codec *pid.Codec) Option {
	return func(e *Engine) {
		e.codec = codec
	}
}

func WithScheme(scheme commitment.Scheme) Option {
	return func(e *Engine) {
		e.scheme = scheme
	}
}

func WithDirectory(dir MemberDirectory) Option {
	return func(e *Engine) {
		e.directory = dir
	}
}

func WithOwners(owners OwnerResolver) Option {
	return func(e *Engine) {
		e.owners = owners
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(roots RootAuthority, revocations RevocationChecker, backend Backend, opts ...Option) *Engine {
	e := &Engine{
		codec:       pid.Default(),
		scheme:      commitment.HashScheme{},
		backend:     backend,
		roots:       roots,
		revocations: revocations,
		logger:      slog.Default(),
		tracer:      otel.Tracer("pidgate/internal/proof"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) newHeader(kind Kind) Header {
	return Header{
		ID:        uuid.NewString(),
		CircuitID: CircuitID(kind),
		Type:      kind,
		CreatedAt: e.now().UTC(),
	}
}

func (e *Engine) startGenerate(ctx context.Context, kind Kind) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "proof.Generate",
		trace.WithAttributes(attribute.String("proof.kind", string(kind))))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "generation failed")
			e.logger.DebugContext(ctx, "proof generation failed", "kind", kind, "error", err)
		}
		span.End()
		if e.metrics != nil {
			e.metrics.ObserveGenerate(string(kind), err, start)
		}
	}
}

// MembershipInput is the prover's secret for a registry membership proof:
// the PID and the opening of the commitment registered for it.
type MembershipInput struct {
	PID     string
	Opening commitment.Commitment
}

// GenerateMembership proves the PID is a leaf of reg's latest root. The
// proof exposes the root and the commitment, not the PID.
func (e *Engine) GenerateMembership(ctx context.Context, in MembershipInput, reg RegistryProver) (_ *MembershipProof, err error) {
	_, done := e.startGenerate(ctx, KindMembership)
	defer func() { done(err) }()

	if in.PID == "" {
		return nil, generationError(KindMembership, "pid is required", nil)
	}
	path, root, err := reg.Prove(in.PID)
	if err != nil {
		return nil, generationError(KindMembership, "pid is not registered", err)
	}
	if !e.opens(in.Opening, in.PID, path.Leaf) {
		return nil, generationError(KindMembership, "opening does not match the registered leaf", nil)
	}
	return &MembershipProof{
		Header:    e.newHeader(KindMembership),
		Inclusion: Inclusion{Root: root, Commitment: in.Opening.Public(), Path: path},
	}, nil
}

// GenerateSetMembership proves pid belongs to an ad hoc set. Members are
// committed with fresh nonces and ordered by commitment, so the path reveals
// nothing about the member's position in the caller's list. Every member of
// the set must be registered and unrevoked.
func (e *Engine) GenerateSetMembership(ctx context.Context, member string, set []string) (_ *MembershipProof, err error) {
	ctx, done := e.startGenerate(ctx, KindMembership)
	defer func() { done(err) }()

	members := normalizeSet(set)
	if err := e.admitMembers(ctx, members); err != nil {
		return nil, err
	}
	inc, err := e.adHocInclusion(KindMembership, member, members, SetScope(members))
	if err != nil {
		return nil, err
	}
	return &MembershipProof{Header: e.newHeader(KindMembership), Inclusion: inc}, nil
}

func (e *Engine) admitMembers(ctx context.Context, members []string) error {
	if e.directory == nil {
		return &revocation.UntrustedError{Err: errors.New("no member directory configured")}
	}
	if e.revocations == nil {
		return &revocation.UntrustedError{Err: errors.New("no revocation checker configured")}
	}
	for _, m := range members {
		if _, ok := e.directory.Leaf(m); !ok {
			return generationError(KindMembership, fmt.Sprintf("set member %s is not registered", m), merkle.ErrLeafNotFound)
		}
		revoked, err := e.revocations.IsRevoked(ctx, m)
		if err != nil {
			return err
		}
		if revoked {
			return generationError(KindMembership, fmt.Sprintf("set member %s is revoked", m), nil)
		}
	}
	return nil
}

// SetScope is the root scope of the ad hoc set. Verifiers pin it to bind a
// set membership proof to the set they asked about.
func SetScope(set []string) string {
	return registry.SetScope(setLabel(normalizeSet(set)))
}

// GenerateLocker proves lockerID is one of the facility's available lockers.
func (e *Engine) GenerateLocker(ctx context.Context, lockerID, facilityID string, available []string) (_ *LockerProof, err error) {
	_, done := e.startGenerate(ctx, KindLocker)
	defer func() { done(err) }()

	if facilityID == "" {
		return nil, generationError(KindLocker, "facility id is required", nil)
	}
	inc, err := e.adHocInclusion(KindLocker, lockerID, normalizeSet(available), registry.LockerScope(facilityID))
	if err != nil {
		return nil, err
	}
	return &LockerProof{Header: e.newHeader(KindLocker), Inclusion: inc, FacilityID: facilityID}, nil
}

func (e *Engine) adHocInclusion(kind Kind, member string, members []string, scope string) (Inclusion, error) {
	if member == "" {
		return Inclusion{}, generationError(kind, "member is required", nil)
	}
	if len(members) == 0 {
		return Inclusion{}, generationError(kind, "set is empty", nil)
	}
	if _, found := slices.BinarySearch(members, member); !found {
		return Inclusion{}, generationError(kind, "member is not in the set", nil)
	}

	var opening commitment.Commitment
	leaves := make([]merkle.Hash, 0, len(members))
	for _, m := range members {
		c, err := e.scheme.Commit(m, nil)
		if err != nil {
			return Inclusion{}, generationError(kind, "commit set member", err)
		}
		d, err := c.Digest()
		if err != nil {
			return Inclusion{}, generationError(kind, "commit set member", err)
		}
		if m == member {
			opening = c
		}
		leaves = append(leaves, merkle.Hash(d))
	}
	slices.SortFunc(leaves, func(a, b merkle.Hash) int { return bytes.Compare(a[:], b[:]) })

	leaf, _ := opening.Digest()
	tree := merkle.Build(leaves)
	path, err := tree.ProveLeaf(merkle.Hash(leaf))
	if err != nil {
		return Inclusion{}, generationError(kind, "prove member", err)
	}
	return Inclusion{
		Root:       e.roots.SignEphemeral(scope, tree),
		Commitment: opening.Public(),
		Path:       path,
	}, nil
}

// GenerateStructure commits to every segment of the PID and reveals only its
// country and depth.
func (e *Engine) GenerateStructure(ctx context.Context, pidStr string) (_ *StructureProof, err error) {
	_, done := e.startGenerate(ctx, KindStructure)
	defer func() { done(err) }()

	segments, err := e.codec.Decode(pidStr)
	if err != nil {
		return nil, err
	}
	schema, _ := e.codec.Schema(segments[0].Value)

	p := &StructureProof{
		Header:         e.newHeader(KindStructure),
		CountryCode:    segments[0].Value,
		HierarchyDepth: len(segments),
		Segments:       make([]commitment.Commitment, len(segments)),
		LevelValidity:  pid.LevelValidity(segments, schema),
	}
	for i, seg := range segments {
		c, err := e.scheme.Commit(seg.Value, nil)
		if err != nil {
			return nil, generationError(KindStructure, "commit segment", err)
		}
		p.Segments[i] = c.Public()
	}
	if p.Attestation, err = e.backend.Attest(structureStatement(p)); err != nil {
		return nil, generationError(KindStructure, "attest", err)
	}
	return p, nil
}

func structureStatement(p *StructureProof) Statement {
	public := [][]byte{[]byte(p.CountryCode), []byte(strconv.Itoa(p.HierarchyDepth))}
	for _, c := range p.Segments {
		public = append(public, []byte(c.ValueHash))
	}
	bits := make([]byte, len(p.LevelValidity))
	for i, ok := range p.LevelValidity {
		if ok {
			bits[i] = 1
		}
	}
	public = append(public, bits)
	return Statement{CircuitID: p.CircuitID, Kind: KindStructure, Public: public}
}

// GenerateSelectiveReveal discloses revealFields verbatim and commits to
// every other address field.
func (e *Engine) GenerateSelectiveReveal(ctx context.Context, addr domain.Address, revealFields []string) (_ *SelectiveRevealProof, err error) {
	_, done := e.startGenerate(ctx, KindSelectiveReveal)
	defer func() { done(err) }()

	reveal := make(map[domain.AddressField]bool, len(revealFields))
	for _, name := range revealFields {
		f, err := domain.ParseAddressField(name)
		if err != nil {
			return nil, generationError(KindSelectiveReveal, "unknown reveal field "+strconv.Quote(name), nil)
		}
		reveal[f] = true
	}

	p := &SelectiveRevealProof{
		Header:   e.newHeader(KindSelectiveReveal),
		Revealed: make(map[string]string, len(reveal)),
		Hidden:   make(map[string]commitment.Commitment, len(domain.AddressFields)-len(reveal)),
	}
	for _, f := range domain.AddressFields {
		if reveal[f] {
			p.Revealed[string(f)] = addr.Get(f)
			continue
		}
		c, err := e.scheme.Commit(addr.Get(f), nil)
		if err != nil {
			return nil, generationError(KindSelectiveReveal, "commit field", err)
		}
		p.Hidden[string(f)] = c.Public()
	}
	if p.Attestation, err = e.backend.Attest(selectiveStatement(p)); err != nil {
		return nil, generationError(KindSelectiveReveal, "attest", err)
	}
	return p, nil
}

func selectiveStatement(p *SelectiveRevealProof) Statement {
	public := make([][]byte, 0, len(domain.AddressFields))
	for _, f := range domain.AddressFields {
		name := string(f)
		if v, ok := p.Revealed[name]; ok {
			public = append(public, []byte("r:"+name+"="+v))
		}
		if c, ok := p.Hidden[name]; ok {
			public = append(public, []byte("h:"+name+"="+c.ValueHash))
		}
	}
	return Statement{CircuitID: p.CircuitID, Kind: KindSelectiveReveal, Public: public}
}

// VersionInput is the owner's secret for a continuity proof.
type VersionInput struct {
	OldPID string
	NewPID string
	Owner  *did.KeyPair
}

// GenerateVersion signs the link OldPID -> NewPID with the owner's key.
// Linking to a successor that is already revoked is a conflict.
func (e *Engine) GenerateVersion(ctx context.Context, in VersionInput) (_ *VersionProof, err error) {
	ctx, done := e.startGenerate(ctx, KindVersion)
	defer func() { done(err) }()

	if in.Owner == nil {
		return nil, generationError(KindVersion, "owner key is required", nil)
	}
	oldSegs, err := e.codec.Decode(in.OldPID)
	if err != nil {
		return nil, err
	}
	newSegs, err := e.codec.Decode(in.NewPID)
	if err != nil {
		return nil, err
	}
	if pid.Equal(oldSegs, newSegs) {
		return nil, generationError(KindVersion, "old and new pid must differ", nil)
	}
	if err := e.checkOwner(ctx, in.OldPID, in.Owner.DID); err != nil {
		return nil, err
	}
	if e.revocations == nil {
		return nil, &revocation.UntrustedError{Err: errors.New("no revocation checker configured")}
	}
	revoked, err := e.revocations.IsRevoked(ctx, in.NewPID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, &revocation.ConflictError{PID: in.OldPID, NewPID: in.NewPID}
	}

	p := &VersionProof{
		Header:    e.newHeader(KindVersion),
		OldPID:    in.OldPID,
		NewPID:    in.NewPID,
		OwnerDID:  in.Owner.DID,
		Timestamp: e.now().UTC(),
	}
	p.Signature = hex.EncodeToString(ed25519.Sign(in.Owner.Private, versionStatement(p)))
	return p, nil
}

// ErrNotOwner means the DID linking a PID is not the one it was registered for.
var ErrNotOwner = errors.New("owner did is not the registered subject")

func (e *Engine) checkOwner(ctx context.Context, oldPID, ownerDID string) error {
	if e.owners == nil {
		return &revocation.UntrustedError{Err: errors.New("no owner resolver configured")}
	}
	subject, err := e.owners.OwnerOf(ctx, oldPID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return generationError(KindVersion, "old pid is not registered", err)
	}
	if err != nil {
		return &revocation.UntrustedError{Err: fmt.Errorf("resolve owner of %s: %w", oldPID, err)}
	}
	if subject != ownerDID {
		return generationError(KindVersion, "only the registered owner can link this pid", ErrNotOwner)
	}
	return nil
}

func versionStatement(p *VersionProof) []byte {
	buf := []byte("pidgate/version/v1")
	for _, s := range []string{p.OldPID, p.NewPID, p.OwnerDID} {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
		buf = append(buf, s...)
	}
	return binary.BigEndian.AppendUint64(buf, uint64(p.Timestamp.UnixNano()))
}

func (e *Engine) opens(c commitment.Commitment, value string, leaf merkle.Hash) bool {
	nonce, err := commitment.DecodeNonce(c.Nonce)
	if err != nil || !e.scheme.Open(c, value, nonce) {
		return false
	}
	d, err := c.Digest()
	return err == nil && merkle.Hash(d) == leaf
}

func normalizeSet(set []string) []string {
	out := make([]string, 0, len(set))
	for _, s := range set {
		if s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func setLabel(members []string) string {
	h := sha256.New()
	for _, m := range members {
		h.Write([]byte(m))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
