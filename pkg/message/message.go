// Package message defines the bencoded payloads exchanged by overlay nodes.
package message

import (
	"bytes"

	"github.com/jackpal/bencode-go"
	"github.com/pkg/errors"
)

// Version of the message protocol spoken by this package
const Version = 1

// Message types
const (
	TypeHello Type = "hello"
	TypePeers Type = "peers"
	TypeData  Type = "data"
)

// Type of a message
type Type string

// Hello is the handshake payload
type Hello struct {
	Version int
	Port    int
	ID      string
}

// Addr of a peer in a peer list
type Addr struct {
	Host string
	Port int
}

// Message is the decoded form of a payload.  Only the field matching Type is
// populated.
type Message struct {
	Type  Type
	Hello Hello
	Peers []Addr
	Data  []byte
}

// NewHello message
func NewHello(id string, port int) Message {
	return Message{Type: TypeHello, Hello: Hello{Version: Version, Port: port, ID: id}}
}

// NewPeers message
func NewPeers(as []Addr) Message { return Message{Type: TypePeers, Peers: as} }

// NewData message
func NewData(b []byte) Message { return Message{Type: TypeData, Data: b} }

// Encode m as a bencoded dictionary
func Encode(m Message) ([]byte, error) {
	d := map[string]interface{}{"t": string(m.Type)}

	switch m.Type {
	case TypeHello:
		d["v"] = m.Hello.Version
		d["p"] = m.Hello.Port
		d["id"] = m.Hello.ID
	case TypePeers:
		ps := make([]interface{}, len(m.Peers))
		for i, a := range m.Peers {
			ps[i] = map[string]interface{}{"h": a.Host, "p": a.Port}
		}
		d["peers"] = ps
	case TypeData:
		d["d"] = string(m.Data)
	default:
		return nil, errors.Errorf("unknown message type %q", m.Type)
	}

	var buf bytes.Buffer
	if err := bencode.Marshal(&buf, d); err != nil {
		return nil, errors.Wrap(err, "bencode")
	}

	return buf.Bytes(), nil
}

// MustEncode is like Encode, but panics on error
func MustEncode(m Message) []byte {
	b, err := Encode(m)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode a payload
func Decode(b []byte) (m Message, err error) {
	v, err := bencode.Decode(bytes.NewReader(b))
	if err != nil {
		return m, errors.Wrap(err, "bencode")
	}

	d, ok := v.(map[string]interface{})
	if !ok {
		return m, errors.New("message is not a dictionary")
	}

	t, err := str(d, "t")
	if err != nil {
		return m, err
	}
	m.Type = Type(t)

	switch m.Type {
	case TypeHello:
		if m.Hello.Version, err = num(d, "v"); err != nil {
			return
		}
		if m.Hello.Port, err = num(d, "p"); err != nil {
			return
		}
		m.Hello.ID, err = str(d, "id")
	case TypePeers:
		m.Peers, err = peers(d)
	case TypeData:
		var s string
		s, err = str(d, "d")
		m.Data = []byte(s)
	default:
		err = errors.Errorf("unknown message type %q", t)
	}

	return
}

func peers(d map[string]interface{}) ([]Addr, error) {
	l, ok := d["peers"].([]interface{})
	if !ok {
		return nil, errors.New("peers: expected list")
	}

	as := make([]Addr, 0, len(l))
	for _, v := range l {
		pd, ok := v.(map[string]interface{})
		if !ok {
			return nil, errors.New("peers: expected dictionary")
		}

		host, err := str(pd, "h")
		if err != nil {
			return nil, errors.Wrap(err, "peers")
		}

		port, err := num(pd, "p")
		if err != nil {
			return nil, errors.Wrap(err, "peers")
		}

		as = append(as, Addr{Host: host, Port: port})
	}

	return as, nil
}

func str(d map[string]interface{}, key string) (string, error) {
	s, ok := d[key].(string)
	if !ok {
		return "", errors.Errorf("%s: expected string", key)
	}
	return s, nil
}

func num(d map[string]interface{}, key string) (int, error) {
	n, ok := d[key].(int64)
	if !ok {
		return 0, errors.Errorf("%s: expected integer", key)
	}
	return int(n), nil
}
