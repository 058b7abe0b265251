package wire

import (
	"reflect"

	"github.com/outofforest/proton"
	"github.com/outofforest/proton/helpers"
	"github.com/pkg/errors"
)

const (
	id0 uint64 = iota + 1
	id1
)

var _ proton.Marshaller = Marshaller{}

// NewMarshaller creates marshaller.
func NewMarshaller() Marshaller {
	return Marshaller{}
}

// Marshaller marshals and unmarshals messages.
type Marshaller struct {
}

// Messages returns list of the message types supported by marshaller.
func (m Marshaller) Messages() []any {
	return []any {
		Ping{},
		Pong{},
	}
}

// ID returns ID of message type.
func (m Marshaller) ID(msg any) (uint64, error) {
	switch msg.(type) {
	case *Ping:
		return id0, nil
	case *Pong:
		return id1, nil
	default:
		return 0, errors.Errorf("unknown message type %T", msg)
	}
}

// Size computes the size of marshalled message.
func (m Marshaller) Size(msg any) (uint64, error) {
	switch msg2 := msg.(type) {
	case *Ping:
		return size0(msg2), nil
	case *Pong:
		return size1(msg2), nil
	default:
		return 0, errors.Errorf("unknown message type %T", msg)
	}
}

// Marshal marshals message.
func (m Marshaller) Marshal(msg any, buf []byte) (retID, retSize uint64, retErr error) {
	defer helpers.RecoverMarshal(&retErr)

	switch msg2 := msg.(type) {
	case *Ping:
		return id0, marshal0(msg2, buf), nil
	case *Pong:
		return id1, marshal1(msg2, buf), nil
	default:
		return 0, 0, errors.Errorf("unknown message type %T", msg)
	}
}

// Unmarshal unmarshals message.
func (m Marshaller) Unmarshal(id uint64, buf []byte) (retMsg any, retSize uint64, retErr error) {
	defer helpers.RecoverUnmarshal(&retErr)

	switch id {
	case id0:
		msg := &Ping{}
		return msg, unmarshal0(msg, buf), nil
	case id1:
		msg := &Pong{}
		return msg, unmarshal1(msg, buf), nil
	default:
		return nil, 0, errors.Errorf("unknown ID %d", id)
	}
}

// MakePatch creates a patch.
func (m Marshaller) MakePatch(msgDst, msgSrc any, buf []byte) (retID, retSize uint64, retErr error) {
	defer helpers.RecoverMakePatch(&retErr)

	switch msg2 := msgDst.(type) {
	case *Ping:
		return id0, makePatch0(msg2, msgSrc.(*Ping), buf), nil
	case *Pong:
		return id1, makePatch1(msg2, msgSrc.(*Pong), buf), nil
	default:
		return 0, 0, errors.Errorf("unknown message type %T", msgDst)
	}
}

// ApplyPatch applies patch.
func (m Marshaller) ApplyPatch(msg any, buf []byte) (retSize uint64, retErr error) {
	defer helpers.RecoverApplyPatch(&retErr)

	switch msg2 := msg.(type) {
	case *Ping:
		return applyPatch0(msg2, buf), nil
	case *Pong:
		return applyPatch1(msg2, buf), nil
	default:
		return 0, errors.Errorf("unknown message type %T", msg)
	}
}

func size0(m *Ping) uint64 {
	var n uint64 = 2
	{
		// Seq

		helpers.UInt64Size(m.Seq, &n)
	}
	{
		// Slave

		{
			l := uint64(len(m.Slave))
			helpers.UInt64Size(l, &n)
			n += l
		}
	}
	return n
}

func marshal0(m *Ping, b []byte) uint64 {
	var o uint64
	{
		// Seq

		helpers.UInt64Marshal(m.Seq, b, &o)
	}
	{
		// Slave

		{
			l := uint64(len(m.Slave))
			helpers.UInt64Marshal(l, b, &o)
			copy(b[o:o+l], m.Slave)
			o += l
		}
	}

	return o
}

func unmarshal0(m *Ping, b []byte) uint64 {
	var o uint64
	{
		// Seq

		helpers.UInt64Unmarshal(&m.Seq, b, &o)
	}
	{
		// Slave

		{
			var l uint64
			helpers.UInt64Unmarshal(&l, b, &o)
			if l > 0 {
				m.Slave = string(b[o:o+l])
				o += l
			}
		}
	}

	return o
}

func makePatch0(m, mSrc *Ping, b []byte) uint64 {
	var o uint64 = 1
	{
		// Seq

		if reflect.DeepEqual(m.Seq, mSrc.Seq) {
			b[0] &= 0xFE
		} else {
			b[0] |= 0x01
			helpers.UInt64Marshal(m.Seq, b, &o)
		}
	}
	{
		// Slave

		if reflect.DeepEqual(m.Slave, mSrc.Slave) {
			b[0] &= 0xFD
		} else {
			b[0] |= 0x02
			{
				l := uint64(len(m.Slave))
				helpers.UInt64Marshal(l, b, &o)
				copy(b[o:o+l], m.Slave)
				o += l
			}
		}
	}

	return o
}

func applyPatch0(m *Ping, b []byte) uint64 {
	var o uint64 = 1
	{
		// Seq

		if b[0]&0x01 != 0 {
			helpers.UInt64Unmarshal(&m.Seq, b, &o)
		}
	}
	{
		// Slave

		if b[0]&0x02 != 0 {
			{
				var l uint64
				helpers.UInt64Unmarshal(&l, b, &o)
				if l > 0 {
					m.Slave = string(b[o:o+l])
					o += l
				}
			}
		}
	}

	return o
}

func size1(m *Pong) uint64 {
	var n uint64 = 2
	{
		// Seq

		helpers.UInt64Size(m.Seq, &n)
	}
	{
		// ProcessID

		helpers.UInt64Size(m.ProcessID, &n)
	}
	return n
}

func marshal1(m *Pong, b []byte) uint64 {
	var o uint64
	{
		// Seq

		helpers.UInt64Marshal(m.Seq, b, &o)
	}
	{
		// ProcessID

		helpers.UInt64Marshal(m.ProcessID, b, &o)
	}

	return o
}

func unmarshal1(m *Pong, b []byte) uint64 {
	var o uint64
	{
		// Seq

		helpers.UInt64Unmarshal(&m.Seq, b, &o)
	}
	{
		// ProcessID

		helpers.UInt64Unmarshal(&m.ProcessID, b, &o)
	}

	return o
}

func makePatch1(m, mSrc *Pong, b []byte) uint64 {
	var o uint64 = 1
	{
		// Seq

		if reflect.DeepEqual(m.Seq, mSrc.Seq) {
			b[0] &= 0xFE
		} else {
			b[0] |= 0x01
			helpers.UInt64Marshal(m.Seq, b, &o)
		}
	}
	{
		// ProcessID

		if reflect.DeepEqual(m.ProcessID, mSrc.ProcessID) {
			b[0] &= 0xFD
		} else {
			b[0] |= 0x02
			helpers.UInt64Marshal(m.ProcessID, b, &o)
		}
	}

	return o
}

func applyPatch1(m *Pong, b []byte) uint64 {
	var o uint64 = 1
	{
		// Seq

		if b[0]&0x01 != 0 {
			helpers.UInt64Unmarshal(&m.Seq, b, &o)
		}
	}
	{
		// ProcessID

		if b[0]&0x02 != 0 {
			helpers.UInt64Unmarshal(&m.ProcessID, b, &o)
		}
	}

	return o
}
