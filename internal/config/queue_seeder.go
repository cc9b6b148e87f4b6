package config

import (
	"errors"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"hospital-queue/internal/adapters/persistence/memory"
	"hospital-queue/internal/adapters/persistence/models"
	"hospital-queue/internal/core/domain"
)

type departmentSeed struct {
	Code          string
	Name          string
	AvgMinutes    int
	DailyCapacity int
}

type hospitalSeed struct {
	Code        string
	Name        string
	Departments []departmentSeed
}

var defaultHospitals = []hospitalSeed{
	{
		Code: "CGH",
		Name: "City General Hospital",
		Departments: []departmentSeed{
			{"EMR", "Emergency", 5, 0},
			{"GEN", "General Medicine", 10, 200},
			{"CAR", "Cardiology", 20, 60},
			{"PED", "Pediatrics", 15, 120},
			{"ORT", "Orthopedics", 20, 80},
			{"DER", "Dermatology", 15, 60},
		},
	},
	{
		Code: "NCC",
		Name: "Northside Community Clinic",
		Departments: []departmentSeed{
			{"GEN", "General Medicine", 12, 100},
			{"ENT", "ENT", 15, 40},
		},
	},
}

// SeedQueueData inserts the default hospitals and departments if missing
func SeedQueueData(db *gorm.DB) error {
	for _, hs := range defaultHospitals {
		var h models.Hospital
		err := db.Where("code = ?", hs.Code).First(&h).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h = models.Hospital{Code: hs.Code, Name: hs.Name, IsActive: true}
			if err := db.Create(&h).Error; err != nil {
				return err
			}
			log.Info().Str("code", hs.Code).Msg("created hospital")
		} else if err != nil {
			return err
		}

		for _, ds := range hs.Departments {
			var existing models.Department
			err := db.Where("hospital_id = ? AND code = ?", h.ID, ds.Code).First(&existing).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				d := models.Department{
					HospitalID:            h.ID,
					Code:                  ds.Code,
					Name:                  ds.Name,
					AverageServiceTimeMin: ds.AvgMinutes,
					DailyCapacity:         ds.DailyCapacity,
					IsActive:              true,
				}
				if err := db.Omit("Hospital").Create(&d).Error; err != nil {
					return err
				}
				log.Info().Str("hospital", hs.Code).Str("code", ds.Code).Msg("created department")
			} else if err != nil {
				return err
			}
		}
	}
	log.Info().Msg("queue data seeded")
	return nil
}

// SeedMemory loads the default hospitals and departments into a memory store
func SeedMemory(store *memory.Store) {
	for _, hs := range defaultHospitals {
		h := &domain.Hospital{Code: hs.Code, Name: hs.Name, IsActive: true}
		store.AddHospital(h)
		for _, ds := range hs.Departments {
			store.AddDepartment(&domain.Department{
				HospitalID:            h.ID,
				Code:                  ds.Code,
				Name:                  ds.Name,
				AverageServiceTimeMin: ds.AvgMinutes,
				DailyCapacity:         ds.DailyCapacity,
				IsActive:              true,
			})
		}
	}
}
