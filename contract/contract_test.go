package contract_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mileswatson/blockkey/contract"
	"github.com/mileswatson/blockkey/crypto"
	"github.com/mileswatson/blockkey/hash"
)

type greeting string

func (g greeting) Hash() hash.Hash[greeting] { return hash.Sum[greeting]([]byte(g)) }

func TestSignAndVerifyRoundTrip(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	c := contract.Sign[greeting](priv, greeting("hello world"))
	require.True(t, c.Verify())
}

func TestVerifyRejectsTamperedSignee(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)

	c := contract.Sign[greeting](priv, greeting("hello world"))
	c.Signee = other.PublicKey()
	require.False(t, c.Verify())
}

func TestVerifyRejectsTamperedTimestamp(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	c := contract.Sign[greeting](priv, greeting("hello world"))
	c.Timestamp++
	require.False(t, c.Verify())
}

func TestVerifyRejectsTamperedContent(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	c := contract.Sign[greeting](priv, greeting("hello world"))
	c.Content = greeting("goodbye world")
	require.False(t, c.Verify())
}

func TestContractHashCoversAllFields(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	other, err := crypto.GenerateKey()
	require.NoError(t, err)

	a := contract.Sign[greeting](priv, greeting("hello world"))
	b := a
	b.Timestamp++
	require.NotEqual(t, a.Hash(), b.Hash())

	c := a
	c.Content = greeting("goodbye world")
	require.NotEqual(t, a.Hash(), c.Hash())

	d := a
	d.Signee = other.PublicKey()
	require.NotEqual(t, a.Hash(), d.Hash())

	e := a
	e.Signature = contract.Sign[greeting](other, greeting("hello world")).Signature
	require.NotEqual(t, a.Hash(), e.Hash())
}

func TestVerifyCacherBatch(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	cacher := contract.NewVerifyCacher(2)
	defer cacher.Close()

	var contracts []contract.Contract[greeting]
	for i := 0; i < 10; i++ {
		contracts = append(contracts, contract.Sign[greeting](priv, greeting("msg")))
	}
	require.True(t, contract.VerifyBatch(cacher, contracts))

	bad := contracts[0]
	bad.Content = greeting("tampered")
	contracts[0] = bad
	require.False(t, contract.VerifyBatch(cacher, contracts))
}
