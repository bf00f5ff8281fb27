package adb

// connState is a Connection's handshake/lifecycle state (Spec Section 4.4).
type connState int

const (
	stateInit connState = iota
	stateSentCnxn
	stateTLSUpgrading
	stateSentSig
	stateSentKey
	stateReady
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateInit:
		return "Init"
	case stateSentCnxn:
		return "SentCnxn"
	case stateTLSUpgrading:
		return "TLSUpgrading"
	case stateSentSig:
		return "SentSig"
	case stateSentKey:
		return "SentKey"
	case stateReady:
		return "Ready"
	case stateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// maxAuthRounds bounds how many AUTH(TOKEN) challenges the device may issue
// before the handshake is declared rejected: one round offering a signature,
// one round offering the public key (Spec Section 4.4 "Failures").
const maxAuthRounds = 2
