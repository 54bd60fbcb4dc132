package api

import (
	"github.com/maxpoletaev/replicated/membership"
	"github.com/maxpoletaev/replicated/router"
)

type Router interface {
	Members() []router.Member
	ResolveRead(op router.Operation) (string, bool)
	ResolveWrite(op router.Operation) (string, bool)
	Registry() *membership.Registry
}

var _ Router = (*router.Router)(nil)
