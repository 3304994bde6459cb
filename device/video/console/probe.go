package console

import "gopheros/kernel/hal/multiboot"

var (
	getFramebufferInfoFn = multiboot.GetFramebufferInfo
)
