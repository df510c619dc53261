package mqttsvc

import "fmt"

// QoS is the delivery guarantee level of a message or subscription
type QoS byte

const (
	AtMostOnce  QoS = 0
	AtLeastOnce QoS = 1
	ExactlyOnce QoS = 2
)

// QoSFromLevel returns the QoS for the numeric level,
// unknown levels map to AtMostOnce
func QoSFromLevel(level int) QoS {
	switch level {
	case 1:
		return AtLeastOnce
	case 2:
		return ExactlyOnce
	default:
		return AtMostOnce
	}
}

// Valid reports whether q is one of the three MQTT levels
func (q QoS) Valid() bool {
	return q <= ExactlyOnce
}

// Level returns the numeric level sent on the wire
func (q QoS) Level() byte {
	return byte(q)
}

func (q QoS) String() string {
	switch q {
	case AtMostOnce:
		return "AtMostOnce"
	case AtLeastOnce:
		return "AtLeastOnce"
	case ExactlyOnce:
		return "ExactlyOnce"
	default:
		return fmt.Sprintf("QoS(%d)", byte(q))
	}
}
