// Package chain maps challenge ids to their on-chain counterparts.
package chain

// DefaultOffset is the distance between frontend and on-chain challenge ids
const DefaultOffset int64 = 1000

// IDMapper translates between frontend and on-chain challenge ids
type IDMapper struct {
	Offset int64
}

// NewIDMapper creates a mapper with the given offset
func NewIDMapper(offset int64) IDMapper {
	return IDMapper{Offset: offset}
}

// ToChain returns the on-chain id of a frontend challenge id
func (m IDMapper) ToChain(id int64) int64 {
	return id + m.Offset
}

// FromChain returns the frontend id of an on-chain challenge id
func (m IDMapper) FromChain(chainID int64) int64 {
	return chainID - m.Offset
}
