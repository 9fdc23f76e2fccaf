// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dispatch

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	bn256 "github.com/luxfi/crypto/bn256/cloudflare"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/zkverify/groth16"
	"github.com/luxfi/zkverify/payload"
	"github.com/luxfi/zkverify/receipt"
	"github.com/luxfi/zkverify/rollup"
	"github.com/luxfi/zkverify/store"
	"github.com/luxfi/zkverify/verdict"
	"github.com/luxfi/zkverify/verifier"
)

// Fixture key: gamma and delta on the G2 generator, so a seal of
// (alpha, beta, -vk_x) verifies for exactly the claim digest it was
// forged for.
var (
	fixAlpha = big.NewInt(19)
	fixBeta  = big.NewInt(23)
	fixIC    = []*big.Int{big.NewInt(4), big.NewInt(6), big.NewInt(10)}
)

var fixImageID = payload.ImageID{0xd15a7c4e, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77}

var journalTrue = []byte{0x01, 0x00, 0x00, 0x00}

func fixtureKeyBytes() []byte {
	out := make([]byte, 0, groth16.KeySize)
	out = append(out, new(bn256.G1).ScalarBaseMult(fixAlpha).Marshal()...)
	out = append(out, new(bn256.G2).ScalarBaseMult(fixBeta).Marshal()...)
	out = append(out, new(bn256.G2).ScalarBaseMult(big.NewInt(1)).Marshal()...)
	out = append(out, new(bn256.G2).ScalarBaseMult(big.NewInt(1)).Marshal()...)

	var count [4]byte
	binary.LittleEndian.PutUint32(count[:], uint32(groth16.PublicInputCount+1))
	out = append(out, count[:]...)

	for _, s := range fixIC {
		out = append(out, new(bn256.G1).ScalarBaseMult(s).Marshal()...)
	}
	return out
}

func forgeSeal(claim [32]byte) []byte {
	var front, back fr.Element
	front.SetBytes(claim[:16])
	back.SetBytes(claim[16:])
	inputs := []*big.Int{front.BigInt(new(big.Int)), back.BigInt(new(big.Int))}

	vkX := new(bn256.G1).ScalarBaseMult(fixIC[0])
	for i, input := range inputs {
		tmp := new(bn256.G1)
		tmp.ScalarMult(new(bn256.G1).ScalarBaseMult(fixIC[i+1]), input)
		vkX.Add(vkX, tmp)
	}
	negVkX := new(bn256.G1)
	negVkX.ScalarMult(vkX, big.NewInt(-1))

	out := make([]byte, 0, groth16.SealSize)
	out = append(out, new(bn256.G1).ScalarBaseMult(fixAlpha).Marshal()...)
	out = append(out, new(bn256.G2).ScalarBaseMult(fixBeta).Marshal()...)
	out = append(out, negVkX.Marshal()...)
	return out
}

// combinedPayloadHex builds the full advance payload: a receipt proved
// for provedID, suffixed with the 32 identity bytes claimedID.
func combinedPayloadHex(provedID, claimedID payload.ImageID, journal []byte) string {
	rec := &receipt.Receipt{
		Seal:    forgeSeal(groth16.ClaimDigest(provedID, journal)),
		Journal: journal,
	}
	return hexutil.Encode(append(rec.Encode(), claimedID.Bytes()...))
}

func advanceRequest(index uint64, payloadHex string) *rollup.Request {
	return &rollup.Request{
		Type: rollup.RequestAdvance,
		Data: rollup.RequestData{
			Metadata: &rollup.Metadata{
				MsgSender:   "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266",
				InputIndex:  index,
				BlockNumber: 100 + index,
				Timestamp:   1700000000 + index,
			},
			Payload: payloadHex,
		},
	}
}

func inspectRequest(payloadHex string) *rollup.Request {
	return &rollup.Request{
		Type: rollup.RequestInspect,
		Data: rollup.RequestData{Payload: payloadHex},
	}
}

// nodeStep scripts one finish response from the fake node.
type nodeStep struct {
	code int
	body string
}

// fakeNode plays the rollup node's side of the HTTP contract: scripted
// finish responses, captured notices, reports, and exceptions.
type fakeNode struct {
	mu         sync.Mutex
	script     []nodeStep
	calls      int
	finishes   []string
	notices    []string
	reports    []string
	exceptions []string
	noticeCode int
	cancel     context.CancelFunc

	srv *httptest.Server
}

func newFakeNode(t *testing.T, script []nodeStep) *fakeNode {
	n := &fakeNode{script: script, noticeCode: http.StatusCreated}

	mux := http.NewServeMux()
	mux.HandleFunc("/finish", n.handleFinish)
	mux.HandleFunc("/notice", n.handleNotice)
	mux.HandleFunc("/report", n.handleReport)
	mux.HandleFunc("/exception", n.handleException)
	n.srv = httptest.NewServer(mux)
	t.Cleanup(n.srv.Close)
	return n
}

func (n *fakeNode) handleFinish(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	json.NewDecoder(r.Body).Decode(&body)

	n.mu.Lock()
	n.finishes = append(n.finishes, body["status"])
	var step nodeStep
	exhausted := n.calls >= len(n.script)
	if !exhausted {
		step = n.script[n.calls]
	}
	n.calls++
	cancel := n.cancel
	n.mu.Unlock()

	if exhausted {
		// Script done: stop the loop and report no pending work.
		if cancel != nil {
			cancel()
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.WriteHeader(step.code)
	if step.code == http.StatusOK {
		io.WriteString(w, step.body)
	}
}

func (n *fakeNode) handleNotice(w http.ResponseWriter, r *http.Request) {
	var notice rollup.Notice
	json.NewDecoder(r.Body).Decode(&notice)
	n.mu.Lock()
	n.notices = append(n.notices, notice.Payload)
	code := n.noticeCode
	n.mu.Unlock()
	w.WriteHeader(code)
}

func (n *fakeNode) handleReport(w http.ResponseWriter, r *http.Request) {
	var report rollup.Report
	json.NewDecoder(r.Body).Decode(&report)
	n.mu.Lock()
	n.reports = append(n.reports, report.Payload)
	n.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (n *fakeNode) handleException(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	json.NewDecoder(r.Body).Decode(&body)
	n.mu.Lock()
	n.exceptions = append(n.exceptions, body["payload"])
	n.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (n *fakeNode) snapshot() (finishes, notices, reports, exceptions []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.finishes...),
		append([]string(nil), n.notices...),
		append([]string(nil), n.reports...),
		append([]string(nil), n.exceptions...)
}

// decodeReport parses a captured hex report payload back into JSON.
func decodeReport(t *testing.T, payloadHex string) map[string]any {
	t.Helper()
	raw, err := hexutil.Decode(payloadHex)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

// testRig wires the full pipeline against a fake node.
type testRig struct {
	node     *fakeNode
	client   *rollup.Client
	store    *store.Store
	advance  *AdvanceHandler
	inspect  *InspectHandler
	registry *Registry
	loop     *Loop
}

func newTestRig(t *testing.T, script []nodeStep) *testRig {
	t.Helper()
	node := newFakeNode(t, script)
	client := rollup.NewClient(node.srv.URL, nil)

	vk, err := groth16.ParseVerifyingKey(fixtureKeyBytes())
	require.NoError(t, err)
	v, err := verifier.New(verifier.Config{
		ImageID:   fixImageID,
		Key:       vk,
		Schema:    receipt.SchemaBool,
		CacheSize: 8,
	})
	require.NoError(t, err)

	st := store.New(memdb.New(), nil)
	t.Cleanup(func() { st.Close() })

	reporter := NewReporter(client, nil)
	adv := NewAdvanceHandler(v, reporter, st, nil)
	ins := NewInspectHandler(v, reporter, st, nil)

	reg := NewRegistry()
	require.NoError(t, reg.Register(rollup.RequestAdvance, adv))
	require.NoError(t, reg.Register(rollup.RequestInspect, ins))

	return &testRig{
		node:     node,
		client:   client,
		store:    st,
		advance:  adv,
		inspect:  ins,
		registry: reg,
		loop:     NewLoop(client, reg, nil),
	}
}

func TestAdvanceAcceptsValidProof(t *testing.T) {
	rig := newTestRig(t, nil)
	ctx := context.Background()

	status := rig.advance.Handle(ctx, advanceRequest(3, combinedPayloadHex(fixImageID, fixImageID, journalTrue)))
	require.Equal(t, rollup.StatusAccept, status)

	_, notices, reports, _ := rig.node.snapshot()
	require.Len(t, notices, 1)
	require.Empty(t, reports)

	result, err := rollup.DecodeNoticeResult(notices[0])
	require.NoError(t, err)
	require.Equal(t, true, result)

	rec, err := rig.store.Get(3)
	require.NoError(t, err)
	require.Equal(t, rollup.StatusAccept, rec.Status)
	require.Empty(t, rec.Kind)
	require.Equal(t, true, rec.Result)
	require.Equal(t, 4, rec.JournalLen)
	require.NotEmpty(t, rec.Fingerprint)
	require.NotNil(t, rec.Metadata)
	require.Equal(t, uint64(1700000003), rec.Metadata.Timestamp)
}

func TestAdvanceRejectsForeignProof(t *testing.T) {
	rig := newTestRig(t, nil)
	ctx := context.Background()

	foreign := fixImageID
	foreign[0] ^= 0xffffffff
	// Proof made by a different program, identity bytes claiming ours.
	status := rig.advance.Handle(ctx, advanceRequest(5, combinedPayloadHex(foreign, fixImageID, journalTrue)))
	require.Equal(t, rollup.StatusReject, status)

	_, notices, reports, _ := rig.node.snapshot()
	require.Empty(t, notices)
	require.Len(t, reports, 1)

	diag := decodeReport(t, reports[0])
	require.Equal(t, "verification_failure", diag["kind"])
	require.NotEmpty(t, diag["reason"])

	rec, err := rig.store.Get(5)
	require.NoError(t, err)
	require.Equal(t, rollup.StatusReject, rec.Status)
	require.Equal(t, "verification_failure", rec.Kind)
	require.Nil(t, rec.Result)
}

func TestAdvanceRejectsMalformedHex(t *testing.T) {
	rig := newTestRig(t, nil)

	status := rig.advance.Handle(context.Background(), advanceRequest(1, "0xnothex"))
	require.Equal(t, rollup.StatusReject, status)

	rec, err := rig.store.Get(1)
	require.NoError(t, err)
	require.Equal(t, "malformed_payload", rec.Kind)

	_, notices, reports, _ := rig.node.snapshot()
	require.Empty(t, notices)
	require.Len(t, reports, 1)
	require.Equal(t, "malformed_payload", decodeReport(t, reports[0])["kind"])
}

func TestAdvanceRejectsShortPayload(t *testing.T) {
	rig := newTestRig(t, nil)

	// 32 decoded bytes: identity alone, no receipt.
	short := hexutil.Encode(fixImageID.Bytes())
	status := rig.advance.Handle(context.Background(), advanceRequest(2, short))
	require.Equal(t, rollup.StatusReject, status)

	rec, err := rig.store.Get(2)
	require.NoError(t, err)
	require.Equal(t, "malformed_payload", rec.Kind)
	require.Equal(t, 32, rec.PayloadLen)
}

func TestAdvanceNoticeFailureDegrades(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.node.noticeCode = http.StatusInternalServerError

	status := rig.advance.Handle(context.Background(), advanceRequest(7, combinedPayloadHex(fixImageID, fixImageID, journalTrue)))
	require.Equal(t, rollup.StatusReject, status)

	rec, err := rig.store.Get(7)
	require.NoError(t, err)
	require.Equal(t, rollup.StatusReject, rec.Status)
	require.Equal(t, "notice_submission_error", rec.Kind)
	require.Nil(t, rec.Result)

	_, _, reports, _ := rig.node.snapshot()
	require.Len(t, reports, 1)
	require.Equal(t, "notice_submission_error", decodeReport(t, reports[0])["kind"])
}

type failingRecorder struct{}

func (failingRecorder) Put(*store.Record) error {
	return fmt.Errorf("disk full")
}

func TestAdvanceStoreFailureDegrades(t *testing.T) {
	rig := newTestRig(t, nil)
	reporter := NewReporter(rig.client, nil)

	vk, err := groth16.ParseVerifyingKey(fixtureKeyBytes())
	require.NoError(t, err)
	v, err := verifier.New(verifier.Config{ImageID: fixImageID, Key: vk, Schema: receipt.SchemaBool})
	require.NoError(t, err)

	adv := NewAdvanceHandler(v, reporter, failingRecorder{}, nil)
	status := adv.Handle(context.Background(), advanceRequest(9, combinedPayloadHex(fixImageID, fixImageID, journalTrue)))
	require.Equal(t, rollup.StatusReject, status)
}

func TestInspectAuditQueryFound(t *testing.T) {
	rig := newTestRig(t, nil)
	ctx := context.Background()

	status := rig.advance.Handle(ctx, advanceRequest(11, combinedPayloadHex(fixImageID, fixImageID, journalTrue)))
	require.Equal(t, rollup.StatusAccept, status)

	var query [8]byte
	binary.LittleEndian.PutUint64(query[:], 11)
	status = rig.inspect.Handle(ctx, inspectRequest(hexutil.Encode(query[:])))
	require.Equal(t, rollup.StatusAccept, status)

	_, _, reports, _ := rig.node.snapshot()
	require.NotEmpty(t, reports)
	answer := decodeReport(t, reports[len(reports)-1])
	require.Equal(t, true, answer["found"])
	require.Equal(t, float64(11), answer["input_index"])

	record, ok := answer["record"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "accept", record["status"])
}

func TestInspectAuditQueryMissing(t *testing.T) {
	rig := newTestRig(t, nil)

	var query [8]byte
	binary.LittleEndian.PutUint64(query[:], 999)
	status := rig.inspect.Handle(context.Background(), inspectRequest(hexutil.Encode(query[:])))
	require.Equal(t, rollup.StatusReject, status)

	_, _, reports, _ := rig.node.snapshot()
	require.Len(t, reports, 1)
	answer := decodeReport(t, reports[0])
	require.Equal(t, false, answer["found"])
	require.Equal(t, float64(999), answer["input_index"])
}

func TestInspectDryRunValidProof(t *testing.T) {
	rig := newTestRig(t, nil)

	status := rig.inspect.Handle(context.Background(), inspectRequest(combinedPayloadHex(fixImageID, fixImageID, journalTrue)))
	require.Equal(t, rollup.StatusAccept, status)

	_, notices, reports, _ := rig.node.snapshot()
	require.Empty(t, notices, "dry-run must not produce notices")
	require.Len(t, reports, 1)

	answer := decodeReport(t, reports[0])
	require.Equal(t, "accept", answer["status"])
	require.Equal(t, true, answer["verified_result"])

	// Inspect writes nothing: no record appears at the default index.
	ok, err := rig.store.Has(0)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInspectDryRunInvalidProof(t *testing.T) {
	rig := newTestRig(t, nil)

	foreign := fixImageID
	foreign[3] ^= 0x1
	status := rig.inspect.Handle(context.Background(), inspectRequest(combinedPayloadHex(foreign, fixImageID, journalTrue)))
	require.Equal(t, rollup.StatusReject, status)

	_, _, reports, _ := rig.node.snapshot()
	require.Len(t, reports, 1)
	answer := decodeReport(t, reports[0])
	require.Equal(t, "reject", answer["status"])
	require.Equal(t, "verification_failure", answer["kind"])
}

func TestInspectRejectsMalformedHex(t *testing.T) {
	rig := newTestRig(t, nil)

	status := rig.inspect.Handle(context.Background(), inspectRequest("0xzz"))
	require.Equal(t, rollup.StatusReject, status)
}

func envelope(requestType, payloadHex string, index uint64) string {
	return fmt.Sprintf(
		`{"request_type":%q,"data":{"metadata":{"input_index":%d},"payload":%q}}`,
		requestType, index, payloadHex,
	)
}

func TestLoopProcessesScriptedCycle(t *testing.T) {
	valid := combinedPayloadHex(fixImageID, fixImageID, journalTrue)
	rig := newTestRig(t, []nodeStep{
		{code: http.StatusAccepted},
		{code: http.StatusOK, body: envelope("advance_state", valid, 3)},
		{code: http.StatusAccepted},
		{code: http.StatusOK, body: envelope("upgrade_state", "0x00", 0)},
		{code: http.StatusOK, body: envelope("advance_state", valid, 4)},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rig.node.cancel = cancel

	require.NoError(t, rig.loop.Run(ctx))

	finishes, notices, _, exceptions := rig.node.snapshot()
	require.Equal(t, []string{"accept", "accept", "accept", "accept", "reject", "accept"}, finishes)
	require.Len(t, notices, 2)
	require.Empty(t, exceptions)

	for _, index := range []uint64{3, 4} {
		rec, err := rig.store.Get(index)
		require.NoError(t, err)
		require.Equal(t, rollup.StatusAccept, rec.Status)
	}
}

func TestLoopTransportFatal(t *testing.T) {
	valid := combinedPayloadHex(fixImageID, fixImageID, journalTrue)
	rig := newTestRig(t, []nodeStep{
		{code: http.StatusOK, body: envelope("advance_state", valid, 1)},
		{code: http.StatusInternalServerError},
	})

	err := rig.loop.Run(context.Background())
	require.Error(t, err)
	require.True(t, verdict.IsKind(err, verdict.KindTransportFatal))
	require.ErrorIs(t, err, rollup.ErrUnexpectedStatus)

	finishes, _, _, exceptions := rig.node.snapshot()
	require.Equal(t, []string{"accept", "accept"}, finishes)
	require.Len(t, exceptions, 1)
}

func TestLoopMalformedEnvelopeFatal(t *testing.T) {
	rig := newTestRig(t, []nodeStep{
		{code: http.StatusOK, body: `this is not an envelope`},
	})

	err := rig.loop.Run(context.Background())
	require.Error(t, err)
	require.True(t, verdict.IsKind(err, verdict.KindTransportFatal))
	require.ErrorIs(t, err, rollup.ErrMalformedEnvelope)
}

func TestLoopStopsOnCancel(t *testing.T) {
	rig := newTestRig(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rig.node.cancel = cancel

	require.NoError(t, rig.loop.Run(ctx))
}
