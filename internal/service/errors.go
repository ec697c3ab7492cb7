package service

import (
	"errors"
	"fmt"

	"github.com/d60-Lab/feed-engine/internal/content"
	"github.com/d60-Lab/feed-engine/internal/repository"
)

var (
	ErrNotFound            = repository.ErrNotFound
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrSelfRelation        = errors.New("cannot target self")
	ErrBlocked             = errors.New("relation blocked")
)

// upstream 把内容服务故障统一映射为 ErrUpstreamUnavailable
func upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, content.ErrUnavailable) {
		return fmt.Errorf("%s: %w: %v", op, ErrUpstreamUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
