package protocol

import (
	"fmt"
	"strconv"
)

// Packet is one decoded protocol message. Each message type has a typed
// variant with named fields so handlers never index raw field slices.
type Packet interface {
	// MsgType returns the wire type tag of the packet.
	MsgType() string
}

// Register announces a peer to the central service.
// CP: REGISTER|CP|id|lat|lon|price|username|password
// Driver: REGISTER|DRIVER|id
// Monitor: REGISTER|MONITOR|id
type Register struct {
	Kind      string
	ID        string
	Latitude  float64
	Longitude float64
	Price     float64
	Username  string
	Password  string
}

func (Register) MsgType() string { return TypeRegister }

// Acknowledge confirms a registration: ACKNOWLEDGE|id|status|[key]|[lat]|[lon]
type Acknowledge struct {
	ID        string
	Status    string
	Key       string
	Latitude  string
	Longitude string
}

func (Acknowledge) MsgType() string { return TypeAcknowledge }

// Deny rejects a request: DENY|id|[cpID]|reason (two-field form for auth
// failures: DENY|id|reason).
type Deny struct {
	ID     string
	CPID   string
	Reason string
}

func (Deny) MsgType() string { return TypeDeny }

// Heartbeat carries a charging point's self-reported state.
type Heartbeat struct {
	CPID  string
	State string
}

func (Heartbeat) MsgType() string { return TypeHeartbeat }

// RequestCharge asks the central to start a session.
type RequestCharge struct {
	DriverID     string
	CPID         string
	EnergyNeeded float64
}

func (RequestCharge) MsgType() string { return TypeRequestCharge }

// Authorize notifies driver and charging point that a session starts.
// The price field is present only on the driver copy.
type Authorize struct {
	DriverID     string
	CPID         string
	EnergyNeeded float64
	Price        float64
	HasPrice     bool
}

func (Authorize) MsgType() string { return TypeAuthorize }

// QueryAvailable asks for the list of free charging points.
type QueryAvailable struct {
	DriverID string
}

func (QueryAvailable) MsgType() string { return TypeQueryAvailable }

// AvailableCP is one tuple of an AVAILABLE_CPS response.
type AvailableCP struct {
	CPID      string
	Latitude  float64
	Longitude float64
	Price     float64
}

// AvailableCPs lists free charging points.
type AvailableCPs struct {
	CPs []AvailableCP
}

func (AvailableCPs) MsgType() string { return TypeAvailableCPs }

// SupplyUpdate is a metering report. From a charging point the values are
// increments (or running totals, see billing reconciliation); forwarded to
// drivers and monitors they are cumulative totals.
type SupplyUpdate struct {
	CPID   string
	Energy float64
	Amount float64
}

func (SupplyUpdate) MsgType() string { return TypeSupplyUpdate }

// SupplyEnd reports final session totals from a charging point.
type SupplyEnd struct {
	CPID        string
	DriverID    string
	TotalEnergy float64
	TotalAmount float64
}

func (SupplyEnd) MsgType() string { return TypeSupplyEnd }

// EndCharge is a driver- or dashboard-initiated stop.
type EndCharge struct {
	DriverID string
	CPID     string
}

func (EndCharge) MsgType() string { return TypeEndCharge }

// EndSupply asks a charging point to stop supplying.
type EndSupply struct {
	CPID string
}

func (EndSupply) MsgType() string { return TypeEndSupply }

// StopSupply takes a charging point out of service (deferred while a
// session is running).
type StopSupply struct {
	CPID string
}

func (StopSupply) MsgType() string { return TypeStopSupply }

// ResumeSupply puts a stopped charging point back in service.
type ResumeSupply struct {
	CPID string
}

func (ResumeSupply) MsgType() string { return TypeResumeSupply }

// Fault marks a charging point out of order.
type Fault struct {
	CPID string
}

func (Fault) MsgType() string { return TypeFault }

// Recovery returns a faulted charging point to service.
type Recovery struct {
	CPID string
}

func (Recovery) MsgType() string { return TypeRecovery }

// Ticket is the billing confirmation sent to a driver at session end.
type Ticket struct {
	CPID        string
	TotalEnergy float64
	TotalAmount float64
}

func (Ticket) MsgType() string { return TypeTicket }

// Log forwards a free-form log line from a peer.
type Log struct {
	Source string
	Text   string
}

func (Log) MsgType() string { return TypeLog }

// WeatherAlert carries an in-band weather notification for a charging point.
type WeatherAlert struct {
	CPID  string
	Alert string
}

func (WeatherAlert) MsgType() string { return TypeWeatherAlert }

// ChargingComplete notifies monitors that a session reached its requested
// energy.
type ChargingComplete struct {
	CPID     string
	DriverID string
}

func (ChargingComplete) MsgType() string { return TypeChargingComplete }

// FullState is the JSON-encoded full system dump sent to monitors on
// registration.
type FullState struct {
	CPs     string
	Drivers string
	History string
}

func (FullState) MsgType() string { return TypeFullState }

// CPState is an incremental state-change notification for monitors.
type CPState struct {
	CPID  string
	State string
}

func (CPState) MsgType() string { return TypeCPState }

// DriverStart notifies monitors that a session started.
type DriverStart struct {
	CPID     string
	DriverID string
}

func (DriverStart) MsgType() string { return TypeDriverStart }

// DriverStop notifies monitors that a session ended.
type DriverStop struct {
	CPID     string
	DriverID string
}

func (DriverStop) MsgType() string { return TypeDriverStop }

func parseFloat(s, name string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad %s %q", ErrMalformed, name, s)
	}
	return v, nil
}

func need(fields []string, n int) error {
	if len(fields) < n {
		return fmt.Errorf("%w: %s needs %d fields, got %d", ErrMalformed, fields[0], n, len(fields))
	}
	return nil
}

// DecodePacket turns parsed fields into the typed variant for their type
// tag. A too-short message or unparsable numeric field yields ErrMalformed;
// an unrecognized tag yields ErrUnknownType.
func DecodePacket(fields []string) (Packet, error) {
	switch fields[0] {
	case TypeRegister:
		if err := need(fields, 3); err != nil {
			return nil, err
		}
		p := Register{Kind: fields[1], ID: fields[2]}
		if p.Kind == "CP" {
			if err := need(fields, 8); err != nil {
				return nil, err
			}
			var err error
			if p.Latitude, err = parseFloat(fields[3], "latitude"); err != nil {
				return nil, err
			}
			if p.Longitude, err = parseFloat(fields[4], "longitude"); err != nil {
				return nil, err
			}
			if p.Price, err = parseFloat(fields[5], "price"); err != nil {
				return nil, err
			}
			p.Username = fields[6]
			p.Password = fields[7]
		}
		return p, nil

	case TypeAcknowledge:
		if err := need(fields, 3); err != nil {
			return nil, err
		}
		p := Acknowledge{ID: fields[1], Status: fields[2]}
		if len(fields) > 3 {
			p.Key = fields[3]
		}
		if len(fields) > 5 {
			p.Latitude, p.Longitude = fields[4], fields[5]
		}
		return p, nil

	case TypeDeny:
		if err := need(fields, 3); err != nil {
			return nil, err
		}
		if len(fields) == 3 {
			return Deny{ID: fields[1], Reason: fields[2]}, nil
		}
		return Deny{ID: fields[1], CPID: fields[2], Reason: fields[3]}, nil

	case TypeHeartbeat:
		if err := need(fields, 3); err != nil {
			return nil, err
		}
		return Heartbeat{CPID: fields[1], State: fields[2]}, nil

	case TypeRequestCharge:
		if err := need(fields, 4); err != nil {
			return nil, err
		}
		energy, err := parseFloat(fields[3], "energy")
		if err != nil {
			return nil, err
		}
		return RequestCharge{DriverID: fields[1], CPID: fields[2], EnergyNeeded: energy}, nil

	case TypeAuthorize:
		if err := need(fields, 4); err != nil {
			return nil, err
		}
		energy, err := parseFloat(fields[3], "energy")
		if err != nil {
			return nil, err
		}
		p := Authorize{DriverID: fields[1], CPID: fields[2], EnergyNeeded: energy}
		if len(fields) > 4 {
			if p.Price, err = parseFloat(fields[4], "price"); err != nil {
				return nil, err
			}
			p.HasPrice = true
		}
		return p, nil

	case TypeQueryAvailable:
		if err := need(fields, 2); err != nil {
			return nil, err
		}
		return QueryAvailable{DriverID: fields[1]}, nil

	case TypeAvailableCPs:
		p := AvailableCPs{}
		for i := 1; i+3 < len(fields); i += 4 {
			lat, err := parseFloat(fields[i+1], "latitude")
			if err != nil {
				return nil, err
			}
			lon, err := parseFloat(fields[i+2], "longitude")
			if err != nil {
				return nil, err
			}
			price, err := parseFloat(fields[i+3], "price")
			if err != nil {
				return nil, err
			}
			p.CPs = append(p.CPs, AvailableCP{CPID: fields[i], Latitude: lat, Longitude: lon, Price: price})
		}
		return p, nil

	case TypeSupplyUpdate:
		if err := need(fields, 4); err != nil {
			return nil, err
		}
		energy, err := parseFloat(fields[2], "energy")
		if err != nil {
			return nil, err
		}
		amount, err := parseFloat(fields[3], "amount")
		if err != nil {
			return nil, err
		}
		return SupplyUpdate{CPID: fields[1], Energy: energy, Amount: amount}, nil

	case TypeSupplyEnd:
		if err := need(fields, 5); err != nil {
			return nil, err
		}
		energy, err := parseFloat(fields[3], "energy")
		if err != nil {
			return nil, err
		}
		amount, err := parseFloat(fields[4], "amount")
		if err != nil {
			return nil, err
		}
		return SupplyEnd{CPID: fields[1], DriverID: fields[2], TotalEnergy: energy, TotalAmount: amount}, nil

	case TypeEndCharge, TypeFinishCharge:
		if err := need(fields, 3); err != nil {
			return nil, err
		}
		return EndCharge{DriverID: fields[1], CPID: fields[2]}, nil

	case TypeEndSupply:
		if err := need(fields, 2); err != nil {
			return nil, err
		}
		return EndSupply{CPID: fields[1]}, nil

	case TypeStopSupply:
		p := StopSupply{}
		if len(fields) > 1 {
			p.CPID = fields[1]
		}
		return p, nil

	case TypeResumeSupply:
		p := ResumeSupply{}
		if len(fields) > 1 {
			p.CPID = fields[1]
		}
		return p, nil

	case TypeFault:
		if err := need(fields, 2); err != nil {
			return nil, err
		}
		return Fault{CPID: fields[1]}, nil

	case TypeRecovery:
		if err := need(fields, 2); err != nil {
			return nil, err
		}
		return Recovery{CPID: fields[1]}, nil

	case TypeTicket:
		if err := need(fields, 4); err != nil {
			return nil, err
		}
		energy, err := parseFloat(fields[2], "energy")
		if err != nil {
			return nil, err
		}
		amount, err := parseFloat(fields[3], "amount")
		if err != nil {
			return nil, err
		}
		return Ticket{CPID: fields[1], TotalEnergy: energy, TotalAmount: amount}, nil

	case TypeLog:
		if err := need(fields, 3); err != nil {
			return nil, err
		}
		return Log{Source: fields[1], Text: fields[2]}, nil

	case TypeWeatherAlert:
		if err := need(fields, 3); err != nil {
			return nil, err
		}
		return WeatherAlert{CPID: fields[1], Alert: fields[2]}, nil

	case TypeChargingComplete:
		if err := need(fields, 3); err != nil {
			return nil, err
		}
		return ChargingComplete{CPID: fields[1], DriverID: fields[2]}, nil

	case TypeFullState:
		if err := need(fields, 4); err != nil {
			return nil, err
		}
		return FullState{CPs: fields[1], Drivers: fields[2], History: fields[3]}, nil

	case TypeCPState:
		if err := need(fields, 3); err != nil {
			return nil, err
		}
		return CPState{CPID: fields[1], State: fields[2]}, nil

	case TypeDriverStart:
		if err := need(fields, 3); err != nil {
			return nil, err
		}
		return DriverStart{CPID: fields[1], DriverID: fields[2]}, nil

	case TypeDriverStop:
		if err := need(fields, 3); err != nil {
			return nil, err
		}
		return DriverStop{CPID: fields[1], DriverID: fields[2]}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownType, fields[0])
}
