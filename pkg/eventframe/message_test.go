package eventframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDeposited struct {
	Amount int64 `json:"amount"`
}

func (testDeposited) TypeName() string { return "TestDeposited" }

type testWithdrawn struct {
	Amount int64 `json:"amount"`
}

func (testWithdrawn) TypeName() string { return "TestWithdrawn" }

func TestMsgFromDataRoutesByTypeName(t *testing.T) {
	md := MessageData{TypeName: "TestDeposited", Data: []byte(`{"amount":10}`), Metadata: NewMetadata()}

	msg, err := MsgFromData[testDeposited](md)
	require.NoError(t, err)
	assert.Equal(t, int64(10), msg.Data.Amount)

	_, err = MsgFromData[testWithdrawn](md)
	var mismatch *ErrTypeMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "TestWithdrawn", mismatch.Expected)
	assert.Equal(t, "TestDeposited", mismatch.Actual)
}

func TestToMessageDataRoundTrip(t *testing.T) {
	md, err := ToMessageData(Msg[testDeposited]{Data: testDeposited{Amount: 42}, Metadata: NewMetadata()})
	require.NoError(t, err)
	assert.Equal(t, "TestDeposited", md.TypeName)
	assert.JSONEq(t, `{"amount":42}`, string(md.Data))

	back, err := MsgFromData[testDeposited](md)
	require.NoError(t, err)
	assert.Equal(t, int64(42), back.Data.Amount)
}

func TestMetadataFollowDropsPositionalKeysAndSeedsCorrelation(t *testing.T) {
	parent := NewMetadata()
	parent.SetStreamName(NewStreamName(NewCategory("account"), "A"))
	parent.SetPosition(3)
	parent.SetGlobalPosition(30)

	child := parent.Follow()

	if _, ok := child.StreamName(); ok {
		t.Fatal("Follow() retained stream_name")
	}
	if _, ok := child.Position(); ok {
		t.Fatal("Follow() retained position")
	}
	if _, ok := child.GlobalPosition(); ok {
		t.Fatal("Follow() retained global_position")
	}

	causation, ok := child.getString(MetaCausationMessageStreamName)
	require.True(t, ok)
	assert.Equal(t, "account-A", causation)

	correlation, ok := child.CorrelationStreamName()
	require.True(t, ok)
	assert.Equal(t, "account-A", correlation)
}

func TestMetadataFollowPreservesExistingCorrelation(t *testing.T) {
	parent := NewMetadata()
	parent.SetStreamName(NewStreamName(NewCategory("account"), "A"))
	parent.SetCorrelationStreamName("workflow-1")

	child := parent.Follow()

	correlation, ok := child.CorrelationStreamName()
	require.True(t, ok)
	assert.Equal(t, "workflow-1", correlation)
}
