package mapper

import (
	"codeassist-be/internal/entity"
	"codeassist-be/internal/model"
)

type FileMapper struct{}

func NewFileMapper() *FileMapper {
	return &FileMapper{}
}

func (m *FileMapper) ToEntity(f *model.SessionFile) *entity.SessionFile {
	if f == nil {
		return nil
	}
	return &entity.SessionFile{
		Id:            f.Id,
		ChatSessionId: f.ChatSessionId,
		Filename:      f.Filename,
		SizeBytes:     f.SizeBytes,
		Content:       f.Content,
		UploadedAt:    f.UploadedAt,
	}
}

func (m *FileMapper) ToModel(f *entity.SessionFile) *model.SessionFile {
	if f == nil {
		return nil
	}
	return &model.SessionFile{
		Id:            f.Id,
		ChatSessionId: f.ChatSessionId,
		Filename:      f.Filename,
		SizeBytes:     f.SizeBytes,
		Content:       f.Content,
		UploadedAt:    f.UploadedAt,
	}
}
