package repository

import "errors"

// ErrNotFound 目标关系/记录不存在
var ErrNotFound = errors.New("record not found")
