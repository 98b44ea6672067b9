package server

import "mime/multipart"

type multipartFile interface {
	multipart.File
	Size() int64
}

type sizedFile struct {
	multipart.File
	size int64
}

func (f sizedFile) Size() int64 { return f.size }
