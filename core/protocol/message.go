package protocol

import (
	"errors"
	"strings"
)

// Messages are ordered sequences of string fields joined by the field
// separator; field 0 is the message type tag. Fields must not contain the
// separator or the frame markers; numeric fields are stringified by the
// caller.
const Separator = "|"

// Message type tags.
const (
	TypeRegister         = "REGISTER"
	TypeAcknowledge      = "ACKNOWLEDGE"
	TypeDeny             = "DENY"
	TypeHeartbeat        = "HEARTBEAT"
	TypeRequestCharge    = "REQUEST_CHARGE"
	TypeAuthorize        = "AUTHORIZE"
	TypeQueryAvailable   = "QUERY_AVAILABLE_CPS"
	TypeAvailableCPs     = "AVAILABLE_CPS"
	TypeSupplyUpdate     = "SUPPLY_UPDATE"
	TypeSupplyEnd        = "SUPPLY_END"
	TypeEndCharge        = "END_CHARGE"
	TypeFinishCharge     = "FINISH_CHARGE" // dashboard alias for END_CHARGE
	TypeEndSupply        = "END_SUPPLY"
	TypeStopSupply       = "STOP_SUPPLY"
	TypeResumeSupply     = "RESUME_SUPPLY"
	TypeFault            = "FAULT"
	TypeRecovery         = "RECOVERY"
	TypeTicket           = "TICKET"
	TypeFullState        = "FULL_STATE"
	TypeCPState          = "CP_STATE"
	TypeDriverStart      = "DRIVER_START"
	TypeDriverStop       = "DRIVER_STOP"
	TypeChargingComplete = "CHARGING_COMPLETE"
	TypeLog              = "LOG"
	TypeWeatherAlert     = "WEATHER_ALERT"
)

// ErrMalformed reports a message that cannot be interpreted: an empty type
// tag or too few fields for its type.
var ErrMalformed = errors.New("protocol: malformed message")

// ErrUnknownType reports a parsed message whose type tag is not part of the
// protocol. Receivers ignore such messages.
var ErrUnknownType = errors.New("protocol: unknown message type")

// Build joins a type tag and its positional fields into a message.
func Build(msgType string, fields ...string) string {
	if len(fields) == 0 {
		return msgType
	}
	return msgType + Separator + strings.Join(fields, Separator)
}

// Parse splits a message into its ordered fields. The first field is the
// type tag and must be non-empty.
func Parse(msg string) ([]string, error) {
	fields := strings.Split(msg, Separator)
	if len(fields) == 0 || fields[0] == "" {
		return nil, ErrMalformed
	}
	return fields, nil
}
