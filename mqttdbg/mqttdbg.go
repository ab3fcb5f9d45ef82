// Package mqttdbg is a purely observational MQTT 3.1.1 decoder: it snoops
// the payload bytes already flowing through the bridge and logs a
// human-readable summary of the control packet they carry, using the real
// MQTT packet parser rather than a hand-rolled fixed-header reader (see
// DESIGN.md). It never alters, drops, or delays the bytes it is shown.
package mqttdbg

import (
	"bufio"
	"bytes"
	"encoding/hex"

	"github.com/eclipse/paho.mqtt.golang/packets"
	log "github.com/sirupsen/logrus"
)

// Log decodes data as a single MQTT control packet and writes a summary to
// the logger tagged with addr (the node the payload is associated with).
// Decode failures are logged at debug level and otherwise ignored: this
// package observes traffic it does not control the framing of, so partial
// or non-MQTT payloads are expected, not errors.
func Log(addr byte, data []byte) {
	cp, err := packets.ReadPacket(bufio.NewReader(bytes.NewReader(data)))
	if err != nil {
		log.Debugf("mqttdbg[%d]: not a decodable MQTT packet: %v", addr, err)
		return
	}

	switch p := cp.(type) {
	case *packets.ConnectPacket:
		logConnect(addr, p)
	case *packets.PublishPacket:
		logPublish(addr, p)
	case *packets.SubscribePacket:
		logSubscribe(addr, p)
	case *packets.PingreqPacket:
		logPingreq(addr, p)
	default:
		log.Infof("mqttdbg[%d]: %s", addr, cp.String())
	}
}

func logConnect(addr byte, p *packets.ConnectPacket) {
	log.Infof("mqttdbg[%d]: CONNECT protocol=%s level=%d clean=%t keepalive=%d client=%q",
		addr, p.ProtocolName, p.ProtocolVersion, p.CleanSession, p.Keepalive, p.ClientIdentifier)
	if p.WillFlag {
		log.Infof("mqttdbg[%d]: CONNECT will topic=%q message=%q", addr, p.WillTopic, string(p.WillMessage))
	}
	if p.UsernameFlag {
		log.Infof("mqttdbg[%d]: CONNECT username=%q", addr, p.Username)
	}
	if p.PasswordFlag {
		log.Infof("mqttdbg[%d]: CONNECT password=%q", addr, string(p.Password))
	}
}

func logPublish(addr byte, p *packets.PublishPacket) {
	log.Infof("mqttdbg[%d]: PUBLISH dup=%t qos=%d retain=%t topic=%q", addr, p.Dup, p.Qos, p.Retain, p.TopicName)
	if p.Qos > 0 {
		log.Infof("mqttdbg[%d]: PUBLISH packet-id=%d", addr, p.MessageID)
	}
	log.Infof("mqttdbg[%d]: PUBLISH payload[%d]=%s", addr, len(p.Payload), hex.EncodeToString(p.Payload))
	log.Infof("mqttdbg[%d]: PUBLISH payload-utf8=%s", addr, lossyUTF8(p.Payload))
}

func logSubscribe(addr byte, p *packets.SubscribePacket) {
	log.Infof("mqttdbg[%d]: SUBSCRIBE packet-id=%d", addr, p.MessageID)
	for i, topic := range p.Topics {
		qos := byte(0)
		if i < len(p.Qoss) {
			qos = p.Qoss[i]
		}
		log.Infof("mqttdbg[%d]: SUBSCRIBE topic=%q requested-qos=%d", addr, topic, qos)
	}
}

func logPingreq(addr byte, p *packets.PingreqPacket) {
	if p.FixedHeader.RemainingLength != 0 {
		log.Warnf("mqttdbg[%d]: PINGREQ has non-zero remaining length %d", addr, p.FixedHeader.RemainingLength)
		return
	}
	log.Infof("mqttdbg[%d]: PINGREQ", addr)
}

// lossyUTF8 mirrors Python's decode(errors="replace"): invalid sequences
// become U+FFFD rather than failing the whole decode.
func lossyUTF8(b []byte) string {
	return bytes.NewBuffer(bytes.ToValidUTF8(b, []byte("�"))).String()
}
