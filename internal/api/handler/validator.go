package handler

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/d60-Lab/feed-engine/internal/service"
)

// RegisterValidators 注册自定义校验标签，路由初始化时调用一次
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return v.RegisterValidation("muteduration", func(fl validator.FieldLevel) bool {
		_, ok := service.MuteDuration(fl.Field().String()).Horizon()
		return ok
	})
}
