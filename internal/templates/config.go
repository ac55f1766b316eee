package templates

import "os"

const configTemplate = `environment: development

train:
  data_dir: chest_xray_dataset/train
  artifact_path: model.xcls
  validation_split: 0.1
  seed: 123
  image_height: 80
  image_width: 80
  batch_size: 32
  epochs: 10
  learning_rate: 0.001
  shuffle_buffer: 1000
  interpolation: bilinear
  publish: false
  augment:
    flip_horizontal: true
    rotation: 0.1
    zoom: 0.1

predict:
  artifact_path: model.xcls
  # overrides the interpolation the model was trained with
  # interpolation: bilinear

storage:
  type: local
  # s3:
  #   endpoint_url: "https://nyc3.digitaloceanspaces.com"
  #   region_name: "nyc3"
  #   bucket_name: "xray-artifacts"
  #   folder: "models"

# db:
#   driver: sqlite
#   dsn: "file:runs.db?cache=shared"

# events:
#   topic: xray/training/events
#   pulsar:
#     url: pulsar://localhost:6650
`

const envTemplate = `# Environment overrides for xray. Every config key can be set as
# XRAY_<SECTION>_<KEY>, for example XRAY_TRAIN_EPOCHS=20.
# XRAY_STORAGE_S3_ACCESS_KEY=
# XRAY_STORAGE_S3_SECRET_KEY=
`

func GetConfigTemplate() string {
	return configTemplate
}

func GetEnvTemplate() string {
	return envTemplate
}

func WriteConfig(path string) error {
	return writeTemplate(path, GetConfigTemplate())
}

func WriteEnv(path string) error {
	return writeTemplate(path, GetEnvTemplate())
}

func writeTemplate(path, content string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.WriteString(content)
	if err != nil {
		return err
	}

	return nil
}
