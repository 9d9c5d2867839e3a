package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, msg string) Packet {
	t.Helper()
	fields, err := Parse(msg)
	require.NoError(t, err)
	pkt, err := DecodePacket(fields)
	require.NoError(t, err)
	return pkt
}

func TestDecodeRegisterCP(t *testing.T) {
	pkt := decode(t, "REGISTER|CP|CP1|48.85|2.35|0.40|user|pass")
	reg, ok := pkt.(Register)
	require.True(t, ok)
	assert.Equal(t, "CP", reg.Kind)
	assert.Equal(t, "CP1", reg.ID)
	assert.InDelta(t, 48.85, reg.Latitude, 1e-9)
	assert.InDelta(t, 0.40, reg.Price, 1e-9)
	assert.Equal(t, "user", reg.Username)
	assert.Equal(t, "pass", reg.Password)
}

func TestDecodeRegisterDriver(t *testing.T) {
	pkt := decode(t, "REGISTER|DRIVER|D1")
	reg, ok := pkt.(Register)
	require.True(t, ok)
	assert.Equal(t, "DRIVER", reg.Kind)
	assert.Equal(t, "D1", reg.ID)
}

func TestDecodeRegisterCPTooShort(t *testing.T) {
	fields, err := Parse("REGISTER|CP|CP1|48.85")
	require.NoError(t, err)
	_, err = DecodePacket(fields)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeAuthorizeWithAndWithoutPrice(t *testing.T) {
	pkt := decode(t, "AUTHORIZE|D1|CP1|10|0.40")
	auth := pkt.(Authorize)
	assert.True(t, auth.HasPrice)
	assert.InDelta(t, 0.40, auth.Price, 1e-9)

	pkt = decode(t, "AUTHORIZE|D1|CP1|10")
	auth = pkt.(Authorize)
	assert.False(t, auth.HasPrice)
	assert.InDelta(t, 10, auth.EnergyNeeded, 1e-9)
}

func TestDecodeDenyForms(t *testing.T) {
	pkt := decode(t, "DENY|CP1|AUTH_FAILED")
	deny := pkt.(Deny)
	assert.Equal(t, "CP1", deny.ID)
	assert.Empty(t, deny.CPID)
	assert.Equal(t, "AUTH_FAILED", deny.Reason)

	pkt = decode(t, "DENY|D1|CP9|CP_NOT_FOUND")
	deny = pkt.(Deny)
	assert.Equal(t, "D1", deny.ID)
	assert.Equal(t, "CP9", deny.CPID)
	assert.Equal(t, "CP_NOT_FOUND", deny.Reason)
}

func TestDecodeAvailableCPs(t *testing.T) {
	pkt := decode(t, "AVAILABLE_CPS|CP1|48.85|2.35|0.40|CP2|43.6|1.44|0.35")
	avail := pkt.(AvailableCPs)
	require.Len(t, avail.CPs, 2)
	assert.Equal(t, "CP2", avail.CPs[1].CPID)
	assert.InDelta(t, 0.35, avail.CPs[1].Price, 1e-9)
}

func TestDecodeAvailableCPsEmpty(t *testing.T) {
	pkt := decode(t, "AVAILABLE_CPS")
	avail := pkt.(AvailableCPs)
	assert.Empty(t, avail.CPs)
}

func TestDecodeFinishChargeAlias(t *testing.T) {
	pkt := decode(t, "FINISH_CHARGE|D1|CP1")
	end, ok := pkt.(EndCharge)
	require.True(t, ok)
	assert.Equal(t, "D1", end.DriverID)
	assert.Equal(t, "CP1", end.CPID)
}

func TestDecodeSupplyEnd(t *testing.T) {
	pkt := decode(t, "SUPPLY_END|CP1|D1|10.000|4.00")
	end := pkt.(SupplyEnd)
	assert.InDelta(t, 10, end.TotalEnergy, 1e-9)
	assert.InDelta(t, 4, end.TotalAmount, 1e-9)
}

func TestDecodeBadNumber(t *testing.T) {
	fields, err := Parse("SUPPLY_UPDATE|CP1|ten|4")
	require.NoError(t, err)
	_, err = DecodePacket(fields)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeUnknownType(t *testing.T) {
	fields, err := Parse("WIBBLE|x")
	require.NoError(t, err)
	_, err = DecodePacket(fields)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestParseEmpty(t *testing.T) {
	_, err := Parse("")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestBuildNoFields(t *testing.T) {
	assert.Equal(t, "QUERY_AVAILABLE_CPS|D1", Build(TypeQueryAvailable, "D1"))
	assert.Equal(t, "STOP_SUPPLY", Build(TypeStopSupply))
}
